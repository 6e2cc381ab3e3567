package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"servecheck/internal/config"
	"servecheck/internal/kube"
	"servecheck/internal/monitor"
)

// buildRootCmd constructs the command tree wired to the fn* actions.
func buildRootCmd(g *Globals) *cobra.Command {
	root := &cobra.Command{
		Use:           "servecheck",
		Short:         "Validate model serving end to end: package, serve, register, infer, tear down",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.LogLevel, "log-level", g.LogLevel, "Log level: debug|info|warn|error (defaults SERVECHECK_LOG_LEVEL or info)")
	root.PersistentFlags().BoolVar(&g.LogJSON, "log-json", false, "Emit JSON log lines instead of console output")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		debug := false
		if f := cmd.Flags().Lookup("debug"); f != nil {
			debug = f.Value.String() == "true"
		}
		g.setup(debug)
	}

	root.AddCommand(newRunCmd(g), newDeployCmd(g), newMonitorCmd(g), newStubCmd(g), newCompletionCmd(root))
	return root
}

func newRunCmd(g *Globals) *cobra.Command {
	o := &runOptions{}
	var genMar, stopServer, cleanup bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one validation of a model against a local serving process",
		Example: "  servecheck run --model-name resnet50 --registry models/model_config.json --data samples/\n" +
			"  servecheck run --model-name squeezenet --mar squeezenet-v2.mar --data samples/ --gpus 1",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			if f.Changed("gen-mar") {
				o.cfg.GenMar = &genMar
			}
			if f.Changed("stop-server") {
				o.cfg.StopServer = &stopServer
			}
			if f.Changed("cleanup") {
				o.cfg.Cleanup = &cleanup
			}
			o.cfg.StartWaitSeconds = durationSeconds(o.startWait)
			o.cfg.InferTimeoutSeconds = durationSeconds(o.inferTimeout)
			o.out = cmd.OutOrStdout()
			code, err := fnRun(cmd.Context(), o, g.Logger())
			if err != nil {
				return err
			}
			if code != 0 {
				return exitError{code: code}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.cfg.ModelName, "model-name", "n", "", "Name of the model")
	f.StringVarP(&o.cfg.ModelPath, "model-path", "m", "", "Path to a saved weights file")
	f.StringVar(&o.cfg.Weights, "weights", "", "Weights identifier to export, e.g. ResNet50_Weights.DEFAULT")
	f.StringVarP(&o.cfg.ModelArchPath, "model-arch-path", "a", "", "Path to the model architecture file")
	f.StringVar(&o.cfg.HandlerPath, "handler-path", "", "Built-in handler name or path to a custom handler")
	f.StringVarP(&o.cfg.ClassesPath, "classes", "c", "", "Path to the class mapping file")
	f.StringSliceVarP(&o.cfg.ExtraFiles, "extra-files", "e", nil, "Additional files packaged with the model (comma separated)")
	f.StringVarP(&o.cfg.DataDir, "data", "d", "", "Directory holding the samples to run inference on")
	f.StringVar(&o.cfg.ArchivePath, "mar", "", "Pre-built model archive to serve instead of building one")
	f.IntVarP(&o.cfg.GPUs, "gpus", "g", 0, "Number of GPUs to use")
	f.StringVarP(&o.cfg.GenFolder, "gen-folder", "f", "", "Directory for generated files (default gen)")
	f.BoolVar(&genMar, "gen-mar", true, "Generate the model archive before starting the server")
	f.BoolVar(&stopServer, "stop-server", true, "Stop the server after the run")
	f.BoolVar(&cleanup, "cleanup", true, "Remove generated files after the run")
	f.BoolVar(&o.cfg.Debug, "debug", false, "Debug logging")
	f.StringVar(&o.configFile, "config", "", "Config file (.yaml, .json or .toml); flags override its values")
	f.StringVar(&o.cfg.RegistryPath, "registry", "", "Named-model registry file")
	f.StringVar(&o.cfg.ModelsRoot, "models-root", "", "Root of the per-model asset directories (default: registry directory)")
	f.StringVar(&o.cfg.ServerConfig, "ts-config", "", "Server config file passed to the serving process")
	f.StringVar(&o.cfg.LogConfig, "log-config", "", "Log config file passed to the serving process")
	f.StringVar(&o.cfg.InferenceURL, "inference-url", "", "Inference endpoint (default "+config.DefaultInferenceURL+")")
	f.StringVar(&o.cfg.ManagementURL, "management-url", "", "Management endpoint (default "+config.DefaultManagementURL+")")
	f.DurationVar(&o.startWait, "start-wait", 0, "Maximum wait for the server to answer /ping (default 10s)")
	f.DurationVar(&o.inferTimeout, "infer-timeout", 0, "Timeout of a single inference request (default 2m)")
	f.StringVar(&o.metricsFile, "metrics-file", "", "Write run metrics to this file in Prometheus text format")
	f.DurationVar(&o.monitorInterval, "monitor-interval", 0, "Sample CPU, memory and GPU usage at this interval during the run (0 disables)")
	f.BoolVar(&o.dryRun, "dry-run", false, "Serve from an in-process stub instead of launching the serving binary")
	return cmd
}

func newDeployCmd(g *Globals) *cobra.Command {
	o := &deployOptions{}
	var command string
	cmd := &cobra.Command{
		Use:     "deploy",
		Short:   "Create the serving Deployment on Kubernetes and report whether it became available",
		Example: "  servecheck deploy --image pytorch/torchserve:latest-gpu --command \"torchserve --start\" --gpu 1 --cpu 4 --mem 16Gi",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.spec.Args = kube.ParseCommand(command)
			return fnDeploy(cmd.Context(), o, g.Logger())
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.spec.Image, "image", "", "Serving image")
	f.StringVar(&command, "command", "", "Container command line")
	f.IntVar(&o.spec.GPUs, "gpu", 0, "Number of GPUs")
	f.StringVar(&o.spec.CPU, "cpu", "", "CPU limit, e.g. 4 or 500m")
	f.StringVar(&o.spec.Memory, "mem", "", "Memory limit with a unit in Ei, Pi, Ti, Gi, Mi, Ki")
	f.StringVar(&o.spec.Namespace, "namespace", kube.DefaultNamespace, "Namespace")
	f.StringVar(&o.spec.Name, "name", kube.DefaultName, "Deployment name")
	f.StringVar(&o.kubeconfig, "kubeconfig", "", "Kubeconfig path (default $KUBECONFIG, ~/.kube/config, then in-cluster)")
	f.DurationVar(&o.wait, "wait", kube.DefaultWait, "How long to wait for an available replica")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("mem")
	return cmd
}

func newMonitorCmd(g *Globals) *cobra.Command {
	o := &monitorOptions{}
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Sample CPU, memory and GPU usage until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnMonitor(cmd.Context(), o, g.Logger())
		},
	}
	cmd.Flags().StringVar(&o.outDir, "out", ".", "Directory receiving "+monitor.OutputFile)
	cmd.Flags().DurationVar(&o.interval, "interval", monitor.DefaultInterval, "Sampling interval")
	cmd.Flags().DurationVar(&o.duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	return cmd
}

func newStubCmd(g *Globals) *cobra.Command {
	o := &stubOptions{}
	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Serve the inference and management API from an in-process stub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnStub(cmd.Context(), o, g.Logger())
		},
	}
	cmd.Flags().StringVar(&o.inferenceAddr, "inference-addr", ":8080", "Inference listen address")
	cmd.Flags().StringVar(&o.managementAddr, "management-addr", ":8081", "Management listen address")
	cmd.Flags().StringVar(&o.metricsAddr, "metrics-addr", ":8082", "Metrics listen address (empty disables)")
	return cmd
}

func newCompletionCmd(root *cobra.Command) *cobra.Command {
	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("completion requires a shell: bash|zsh|fish|powershell")
	}}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(cmd.OutOrStdout()) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(cmd.OutOrStdout()) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(cmd.OutOrStdout(), true) }})
	completionCmd.AddCommand(&cobra.Command{Use: "powershell", Short: "PowerShell completion", RunE: func(cmd *cobra.Command, args []string) error {
		return root.GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
	}})
	return completionCmd
}

// durationSeconds converts a flag duration into whole seconds for Config.
func durationSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
