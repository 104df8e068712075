package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	_ "github.com/born-ml/kiln/backend/cpu"
	"github.com/born-ml/kiln/backend/webgpu"
	"github.com/born-ml/kiln/framework"
	"github.com/born-ml/kiln/frontend"
	"github.com/born-ml/kiln/internal/envconfig"
	"github.com/born-ml/kiln/tensor"
)

const version = "v0.1.0-dev"

// previewLen is how many values run prints per fetched tensor.
const previewLen = 8

var errNoFetches = errors.New("model has no fetched variables")

var (
	acceleratorOnce sync.Once
	acceleratorErr  error
)

// registerAccelerator installs the WebGPU kernels into the default
// registry the first time an accelerator target is compiled. The device
// lives until the process exits.
func registerAccelerator() error {
	acceleratorOnce.Do(func() {
		b, err := webgpu.Register(framework.DefaultKernels())
		if err != nil {
			acceleratorErr = err
			return
		}
		klog.V(1).Infof("accelerator: %s", b.Name())
	})
	return acceleratorErr
}

// NewCLI returns the root command.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	if d := envconfig.Debug(); d > 0 {
		_ = klogFlags.Set("v", strconv.Itoa(d))
	}

	rootCmd := &cobra.Command{
		Use:           "kiln",
		Short:         "Tensor program compiler",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)

	rootCmd.AddCommand(
		newRunCmd(),
		newGraphCmd(),
		newProgramCmd(),
		newPassesCmd(),
		newOpsCmd(),
		newEnvCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// compileFlags are shared by the commands that load and compile a model.
type compileFlags struct {
	file   string
	target string
	passes []string
}

func (f *compileFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Model description (YAML)")
	cmd.Flags().StringVar(&f.target, "target", "", "Compilation target, host or accelerator (default $KILN_TARGET or host)")
	cmd.Flags().StringSliceVar(&f.passes, "passes", nil, "Comma separated passes (default $KILN_PASSES)")
	_ = cmd.MarkFlagRequired("file")
}

func (f *compileFlags) resolveTarget() (framework.Target, error) {
	name := f.target
	if name == "" {
		name = envconfig.TargetName()
	}
	if name == "" {
		return framework.DefaultHostTarget(), nil
	}
	return framework.ParseTarget(name)
}

func (f *compileFlags) resolvePasses() []string {
	if f.passes != nil {
		return f.passes
	}
	return envconfig.Passes()
}

// loadGraph translates the model file and applies the requested passes.
func (f *compileFlags) loadGraph() (*framework.Graph, error) {
	t, err := f.resolveTarget()
	if err != nil {
		return nil, err
	}
	m, err := frontend.LoadModel(f.file)
	if err != nil {
		return nil, err
	}
	prog, fetches, err := m.Build(frontend.NewOpMapperRegistry())
	if err != nil {
		return nil, err
	}
	var opts []framework.GraphOption
	if len(fetches) > 0 {
		opts = append(opts, framework.WithFetches(fetches...))
	}
	g, err := framework.NewGraph(prog, t, opts...)
	if err != nil {
		return nil, err
	}
	return framework.ApplyPasses(g, f.resolvePasses()...)
}

func (f *compileFlags) compile() (*framework.Program, *framework.Scope, *framework.Graph, error) {
	g, err := f.loadGraph()
	if err != nil {
		return nil, nil, nil, err
	}
	if g.Target().Kind == framework.Accelerator {
		if err := registerAccelerator(); err != nil {
			return nil, nil, nil, err
		}
	}
	scope, err := framework.BuildScope(g.Target(), g, framework.WithMemoryLimit(envconfig.MemoryLimit()))
	if err != nil {
		return nil, nil, nil, err
	}
	prog, err := framework.NewGraphCompiler(g.Target(), scope, g,
		framework.WithWorkers(int(envconfig.CompileWorkers()))).Build()
	if err != nil {
		return nil, nil, nil, err
	}
	return prog, scope, g, nil
}

func newRunCmd() *cobra.Command {
	var (
		cf   compileFlags
		fill string
		seed int64
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compile a model, fill its inputs and print the fetched tensors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, scope, _, err := cf.compile()
			if err != nil {
				return err
			}
			if len(prog.Fetches()) == 0 {
				return errNoFetches
			}
			if err := fillInputs(scope, prog.Inputs(), fill, seed); err != nil {
				return err
			}
			if err := prog.Execute(); err != nil {
				return err
			}
			return printFetches(cmd.OutOrStdout(), scope, prog.Fetches())
		},
	}
	cf.register(cmd)
	cmd.Flags().StringVar(&fill, "fill", "random", "Input values: \"random\" or a constant")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Seed for random inputs")
	return cmd
}

func fillInputs(scope *framework.Scope, inputs []string, fill string, seed int64) error {
	if fill == "random" {
		rng := rand.New(rand.NewSource(seed))
		for _, id := range inputs {
			x, err := scope.GetTensor(id)
			if err != nil {
				return err
			}
			tensor.FillUniform(x.Raw(), rng, -1, 1)
		}
		return nil
	}
	v, err := strconv.ParseFloat(fill, 64)
	if err != nil {
		return fmt.Errorf("--fill: want \"random\" or a number: %w", err)
	}
	for _, id := range inputs {
		x, err := scope.GetTensor(id)
		if err != nil {
			return err
		}
		tensor.Fill(x.Raw(), v)
	}
	return nil
}

func printFetches(w io.Writer, scope *framework.Scope, fetches []string) error {
	var data [][]string
	for _, id := range fetches {
		x, err := scope.GetTensor(id)
		if err != nil {
			return err
		}
		vals := x.Float64s()
		more := ""
		if len(vals) > previewLen {
			vals, more = vals[:previewLen], " ..."
		}
		strs := make([]string, len(vals))
		for i, v := range vals {
			strs[i] = strconv.FormatFloat(v, 'g', 6, 64)
		}
		data = append(data, []string{id, x.DType().String(), x.Shape().String(), strings.Join(strs, " ") + more})
	}
	table := newTable(w, "FETCH", "DTYPE", "SHAPE", "VALUES")
	table.AppendBulk(data)
	table.Render()
	return nil
}

func newGraphCmd() *cobra.Command {
	var cf compileFlags
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the graph after passes in DOT format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := cf.loadGraph()
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), g.Visualize())
			return err
		},
	}
	cf.register(cmd)
	return cmd
}

func newProgramCmd() *cobra.Command {
	var cf compileFlags
	cmd := &cobra.Command{
		Use:   "program",
		Short: "Print the compiled instruction list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, _, _, err := cf.compile()
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), prog.String())
			return err
		},
	}
	cf.register(cmd)
	return cmd
}

func newPassesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "passes",
		Short: "List the graph passes",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			defaults := framework.DefaultOpFusionPasses()
			table := newTable(cmd.OutOrStdout(), "PASS", "DEFAULT")
			for _, name := range framework.PassNames() {
				mark := ""
				if slices.Contains(defaults, name) {
					mark = "yes"
				}
				table.Append([]string{name, mark})
			}
			table.Render()
		},
	}
}

func newOpsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ops",
		Short: "List the model operators and the kernels per target",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			table := newTable(w, "MODEL OP")
			for _, op := range frontend.NewOpMapperRegistry().SupportedOps() {
				table.Append([]string{op})
			}
			table.Render()
			fmt.Fprintln(w)

			table = newTable(w, "KERNEL", "HOST", "ACCELERATOR")
			host := framework.DefaultKernels().Ops(framework.Host)
			accel := webgpu.Ops()
			mark := func(ok bool) string {
				if ok {
					return "yes"
				}
				return "no"
			}
			for _, op := range frontend.KnownOps() {
				table.Append([]string{string(op), mark(slices.Contains(host, op)), mark(slices.Contains(accel, op))})
			}
			table.Render()
		},
	}
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show the KILN_* environment configuration",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			vars := envconfig.AsMap()
			names := make([]string, 0, len(vars))
			for k := range vars {
				names = append(names, k)
			}
			slices.Sort(names)
			table := newTable(cmd.OutOrStdout(), "NAME", "VALUE", "DESCRIPTION")
			for _, k := range names {
				v := vars[k]
				table.Append([]string{v.Name, fmt.Sprintf("%v", v.Value), v.Description})
			}
			table.Render()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kiln %s\n", version)
		},
	}
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}
