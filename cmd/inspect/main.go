package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/passagelabs/passage/bind"
	"github.com/passagelabs/passage/bridge"
	"github.com/passagelabs/passage/engine"
	"github.com/passagelabs/passage/marshal"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to TOML config")
		wasmFile    = flag.String("wasm", "", "Path to wasm library (overrides config)")
		sigFile     = flag.String("sig", "", "Path to signature text (overrides config)")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		verbose     = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if *configFile == "" && *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: inspect -config <file.toml> [-i]")
		fmt.Fprintln(os.Stderr, "       inspect -wasm <file.wasm> -sig <api.wit> [-i]")
		os.Exit(1)
	}

	if err := run(*configFile, *wasmFile, *sigFile, *interactive, *verbose); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func run(configFile, wasmFile, sigFile string, interactive, verbose bool) error {
	cfg := &Config{}
	if configFile != "" {
		loaded, err := loadConfig(configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if wasmFile != "" {
		cfg.Library = wasmFile
		if cfg.Name == "" {
			cfg.Name = wasmFile
		}
	}
	if sigFile != "" {
		cfg.Signatures = sigFile
	}

	if verbose || cfg.Verbose {
		zl, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer zl.Sync()
		engine.SetLogger(zl.Named("engine"))
		bind.SetLogger(zl.Named("bind"))
	}

	ctx := context.Background()
	rt, err := bridge.NewRuntimeWithConfig(ctx, engine.Config{
		MemoryLimitPages: cfg.Engine.MemoryLimitPages,
		AllocName:        cfg.Engine.Alloc,
		FreeName:         cfg.Engine.Free,
	})
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(ctx)

	binary, err := os.ReadFile(cfg.Library)
	if err != nil {
		return fmt.Errorf("read library: %w", err)
	}

	lib, err := rt.LoadLibrary(ctx, binary, cfg.Name)
	if err != nil {
		return fmt.Errorf("load library: %w", err)
	}

	sigText, err := cfg.signatureText()
	if err != nil {
		return err
	}
	if sigText == "" {
		return fmt.Errorf("no signatures declared; pass -sig or set signatures in the config")
	}

	methods, err := bind.ParseSignatures(sigText)
	if err != nil {
		return fmt.Errorf("parse signatures: %w", err)
	}

	iface := bind.Interface{Name: cfg.Name, Methods: methods}
	for _, s := range cfg.Symbols {
		iface.Symbols = append(iface.Symbols, bind.SymbolSpec{Name: s.Name, Optional: s.Optional})
	}

	table, err := rt.Bind(lib, iface)
	if err != nil {
		return fmt.Errorf("bind: %w", err)
	}

	if interactive {
		return runInteractive(rt, lib, table)
	}

	printTable(cfg, table)
	return nil
}

func printTable(cfg *Config, table *bind.Table) {
	fmt.Println(headerStyle.Render("passage inspect"), cfg.Library)
	fmt.Println()

	fmt.Println("Bound methods:")
	for _, d := range table.Methods() {
		status := ""
		if !d.Available() {
			status = " " + dimStyle.Render("(unavailable)")
		}
		fmt.Printf("  %s%s\n", formatMethod(d), status)
	}

	for _, s := range cfg.Symbols {
		if sym, ok := table.Symbol(s.Name); ok {
			fmt.Printf("\nSymbol %s = %d\n", nameStyle.Render(sym.Name), sym.Value)
		}
	}
}

func formatMethod(d *bind.Descriptor) string {
	params := make([]string, 0, len(d.Params))
	for _, p := range d.Params {
		params = append(params, p.Name+": "+typeStyle.Render(kindStr(p.Type)))
	}
	result := ""
	switch d.Ret.Kind {
	case bind.RetScalar:
		result = " -> " + typeStyle.Render(d.Ret.Scalar.String())
	case bind.RetHandle:
		result = " -> " + typeStyle.Render("handle")
	}
	return nameStyle.Render(d.Name) + "(" + strings.Join(params, ", ") + ")" + result
}

func kindStr(ct *marshal.CompiledType) string {
	switch ct.Kind {
	case marshal.KindPointer:
		if ct.Elem == nil {
			return "handle"
		}
		return "*record"
	case marshal.KindArray:
		return "[]" + kindStr(ct.Elem)
	default:
		return ct.Kind.String()
	}
}
