package runtime

import (
	"fmt"
	"log/slog"
	"sync"
)

// Runtime names accepted by Factory.Get.
const (
	NameExec       = "exec"
	NameDocker     = "docker"
	NameKubernetes = "kubernetes"
)

// Names lists every runtime the factory can build.
var Names = []string{NameExec, NameDocker, NameKubernetes}

// FactoryConfig configures the runtimes built by a Factory.
type FactoryConfig struct {
	WorkDir    string
	Kubernetes KubernetesConfig
}

// Factory builds runtimes on first use and caches them. Docker and
// Kubernetes clients are only created when a step asks for them.
type Factory struct {
	config FactoryConfig
	logger *slog.Logger

	mu       sync.Mutex
	runtimes map[string]Runtime
}

func NewFactory(cfg FactoryConfig, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{config: cfg, logger: logger, runtimes: make(map[string]Runtime)}
}

// Register installs rt under name, replacing any cached runtime.
func (f *Factory) Register(name string, rt Runtime) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runtimes[name] = rt
}

// Get returns the runtime called name. An empty name selects exec.
func (f *Factory) Get(name string) (Runtime, error) {
	if name == "" {
		name = NameExec
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if rt, ok := f.runtimes[name]; ok {
		return rt, nil
	}

	var (
		rt  Runtime
		err error
	)
	switch name {
	case NameExec:
		execRuntime := NewExecRuntime(f.config.WorkDir)
		execRuntime.logger = f.logger
		rt = execRuntime
	case NameDocker:
		rt, err = NewDockerRuntime(f.logger)
	case NameKubernetes:
		rt, err = NewKubernetesRuntime(f.config.Kubernetes, f.logger)
	default:
		return nil, fmt.Errorf("unknown runtime %q", name)
	}
	if err != nil {
		return nil, err
	}

	f.runtimes[name] = rt
	return rt, nil
}
