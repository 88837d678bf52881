package agent

import (
	"fmt"
	"sync"

	"github.com/austin-honeyjar/honeyjar-server-sub004/completion"
	"github.com/austin-honeyjar/honeyjar-server-sub004/config"
	"github.com/austin-honeyjar/honeyjar-server-sub004/executor"
	"github.com/austin-honeyjar/honeyjar-server-sub004/generator"
	"github.com/austin-honeyjar/honeyjar-server-sub004/logger"
	"github.com/austin-honeyjar/honeyjar-server-sub004/notify"
	"github.com/austin-honeyjar/honeyjar-server-sub004/persistence"
	"github.com/austin-honeyjar/honeyjar-server-sub004/persistence/inmem"
	rd "github.com/austin-honeyjar/honeyjar-server-sub004/persistence/redis"
	"github.com/austin-honeyjar/honeyjar-server-sub004/rest"
	"github.com/austin-honeyjar/honeyjar-server-sub004/service"
	"github.com/austin-honeyjar/honeyjar-server-sub004/template"
	"github.com/austin-honeyjar/honeyjar-server-sub004/transition"
)

// Agent wires the engine together and runs it.
type Agent struct {
	Config config.Config

	storage         persistence.WorkflowStorage
	registry        *template.Registry
	client          completion.Client
	dialog          *completion.Adapter
	generator       *generator.AssetGenerator
	notifier        *notify.Notifier
	executor        *executor.StepExecutor
	transition      *transition.Manager
	workflowService *service.WorkflowService
	httpServer      *rest.Server

	shutdown     bool
	shutdownLock sync.Mutex
}

func New(conf config.Config) (*Agent, error) {
	a := &Agent{Config: conf}
	setup := []func() error{
		a.setupStorage,
		a.setupRegistry,
		a.setupCompletion,
		a.setupExecutor,
		a.setupWorkflowService,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupStorage() error {
	switch a.Config.StorageType {
	case config.STORAGE_TYPE_REDIS:
		a.storage = rd.NewRedisWorkflowStorage(rd.Config{
			Addrs:     a.Config.RedisConfig.Addrs,
			Namespace: a.Config.RedisConfig.Namespace,
		})
	case config.STORAGE_TYPE_INMEM:
		a.storage = inmem.NewInMemStorage()
	default:
		return fmt.Errorf("unknown storage type %s", a.Config.StorageType)
	}
	return nil
}

func (a *Agent) setupRegistry() error {
	registry, err := template.NewDefaultRegistry()
	if err != nil {
		return err
	}
	a.registry = registry
	return nil
}

func (a *Agent) setupCompletion() error {
	a.client = completion.NewHttpClient(a.Config.CompletionConfig)
	a.dialog = completion.NewAdapter(a.client)
	a.generator = generator.NewAssetGenerator(a.client)
	a.notifier = notify.NewNotifier(notify.LogSink{})
	return nil
}

func (a *Agent) setupExecutor() error {
	actions := executor.NewApiActionRegistry(
		executor.NewSummarizeCollectedAction(a.client),
	)
	a.executor = executor.NewStepExecutor(a.storage, a.registry, a.client, a.dialog,
		a.generator, actions, a.notifier, a.Config.MaxAutoChainDepth)
	a.transition = transition.NewManager(a.registry, a.storage, a.executor)
	return nil
}

func (a *Agent) setupWorkflowService() error {
	a.workflowService = service.NewWorkflowService(a.storage, a.registry, a.executor, a.transition)
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.workflowService)
	if err != nil {
		return err
	}
	return nil
}

func (a *Agent) Start() error {
	go func() {
		if err := a.httpServer.Start(); err != nil {
			_ = a.Shutdown()
			panic(err)
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down server")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true
	return a.httpServer.Stop()
}
