package types

// PackageDescriptor is one entry of the archive descriptor (mar_config.json) consumed
// by the packaging step. The file holds a JSON array of descriptors.
type PackageDescriptor struct {
	ModelName           string `json:"model_name"`
	Version             string `json:"version"`
	ModelFile           string `json:"model_file"`
	SerializedFileLocal string `json:"serialized_file_local"`
	Handler             string `json:"handler"`
	ExtraFiles          string `json:"extra_files"`
}

// ModelEntry describes a model registered on the serving process.
type ModelEntry struct {
	ModelName string `json:"modelName"`
	ModelURL  string `json:"modelUrl"`
}

// ModelsResponse wraps the list of models returned by GET /models/.
type ModelsResponse struct {
	Models []ModelEntry `json:"models"`
	// NextPageToken is set by servers that paginate the listing.
	NextPageToken string `json:"nextPageToken,omitempty"`
}

// StatusResponse is the body returned by management calls that only report a status line.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the error payload returned by the serving process.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}
