package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gowebpki/jcs"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/Mindburn-Labs/notary/pkg/contracts"
)

// EngineVersion is the verdict ABI this host implements: the module
// reads one canonical (RFC 8785) receipt JSON document on stdin and
// writes one verdict JSON document on stdout. Manifests pin a semver
// constraint against it.
const EngineVersion = "1.0.0"

// Manifest describes a WASM policy module.
type Manifest struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
	// Engine constrains the host's EngineVersion, e.g. ">=1.0.0 <2.0.0".
	// Empty means any engine.
	Engine string `json:"engine,omitempty" yaml:"engine,omitempty"`
}

// CheckEngine verifies the manifest's engine constraint against this
// host. A module built for a different verdict ABI is refused at load,
// not discovered at admission time.
func (m Manifest) CheckEngine() error {
	if m.Engine == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(m.Engine)
	if err != nil {
		return fmt.Errorf("policy: module %s engine constraint %q: %w", m.Name, m.Engine, err)
	}
	host, err := semver.NewVersion(EngineVersion)
	if err != nil {
		return fmt.Errorf("policy: engine version: %w", err)
	}
	if !constraint.Check(host) {
		return fmt.Errorf("policy: module %s requires engine %s, host is %s", m.Name, m.Engine, EngineVersion)
	}
	return nil
}

// WASMConfig bounds one policy module's execution.
type WASMConfig struct {
	MemoryLimitBytes int64
	CallTimeout      time.Duration
}

// DefaultWASMConfig returns the execution limits used when a field is
// left zero: 16 MiB of guest memory and one second per verdict.
func DefaultWASMConfig() WASMConfig {
	return WASMConfig{
		MemoryLimitBytes: 16 << 20,
		CallTimeout:      time.Second,
	}
}

// verdict is the module's stdout reply.
type verdict struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

// WASMPolicy runs a WebAssembly module as an admission policy. The
// sandbox is deny-by-default: no filesystem, no network, no environment,
// no clock, no random source. Guest memory and CPU time are bounded by
// WASMConfig. The module is compiled once at load; each Admit
// instantiates it fresh, so a misbehaving verdict cannot leak state
// into the next one.
type WASMPolicy struct {
	manifest Manifest
	cfg      WASMConfig
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
}

// NewWASMPolicy checks the manifest, builds the sandboxed runtime, and
// compiles the module. Callers own Close.
func NewWASMPolicy(ctx context.Context, manifest Manifest, wasm []byte, cfg WASMConfig) (*WASMPolicy, error) {
	if manifest.Name == "" {
		return nil, errors.New("policy: manifest has no name")
	}
	if err := manifest.CheckEngine(); err != nil {
		return nil, err
	}
	if cfg.MemoryLimitBytes <= 0 {
		cfg.MemoryLimitBytes = DefaultWASMConfig().MemoryLimitBytes
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultWASMConfig().CallTimeout
	}

	// wazero measures memory in 64 KiB pages. CloseOnContextDone makes
	// the per-call deadline interrupt guest execution instead of only
	// being checked at the boundary.
	pages := uint32(cfg.MemoryLimitBytes / (64 * 1024))
	if pages == 0 {
		pages = 1
	}
	runtimeCfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(pages).
		WithCloseOnContextDone(true)

	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	// WASI with stdio only: no FS mounts, no env vars, no nanotime, no
	// random source are ever configured on the module.
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	compiled, err := r.CompileModule(ctx, wasm)
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("policy: compile module %s: %w", manifest.Name, err)
	}

	return &WASMPolicy{
		manifest: manifest,
		cfg:      cfg,
		runtime:  r,
		compiled: compiled,
	}, nil
}

func (p *WASMPolicy) Name() string { return p.manifest.Name }

// Manifest returns the module's metadata.
func (p *WASMPolicy) Manifest() Manifest { return p.manifest }

// Admit feeds the receipt to the module and reads its verdict. Any
// failure mode denies: a policy that cannot speak cannot admit.
func (p *WASMPolicy) Admit(ctx context.Context, r *contracts.Receipt) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}
	// RFC 8785 form: the module sees identical bytes for identical
	// receipts regardless of which host serialized them.
	input, err := jcs.Transform(raw)
	if err != nil {
		return fmt.Errorf("canonicalize receipt: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	modCfg := wazero.NewModuleConfig().
		WithName(""). // anonymous: one policy may serve several supervisors at once
		WithStartFunctions("_start").
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	mod, err := p.runtime.InstantiateModule(ctx, p.compiled, modCfg)
	if mod != nil {
		defer func() { _ = mod.Close(context.WithoutCancel(ctx)) }()
	}
	if err != nil {
		var exit *sys.ExitError
		switch {
		case errors.As(err, &exit):
			if exit.ExitCode() != 0 {
				return fmt.Errorf("module %s exited %d: %s", p.manifest.Name, exit.ExitCode(), strings.TrimSpace(stderr.String()))
			}
			// proc_exit(0) is a normal finish; the verdict is on stdout.
		case ctx.Err() != nil:
			return fmt.Errorf("module %s exceeded %v verdict deadline", p.manifest.Name, p.cfg.CallTimeout)
		default:
			return fmt.Errorf("module %s: %w", p.manifest.Name, err)
		}
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return fmt.Errorf("module %s produced no verdict", p.manifest.Name)
	}
	var v verdict
	if err := json.Unmarshal(out, &v); err != nil {
		return fmt.Errorf("module %s verdict: %w", p.manifest.Name, err)
	}
	if !v.Allow {
		if v.Reason == "" {
			v.Reason = "denied by module"
		}
		return errors.New(v.Reason)
	}
	return nil
}

// Close shuts down the runtime, freeing compiled code and guest memory.
func (p *WASMPolicy) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.runtime.Close(ctx)
}
