// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/servicehost/internal/abi"
	"github.com/tombee/servicehost/internal/command"
	"github.com/tombee/servicehost/internal/handoff"
	"github.com/tombee/servicehost/internal/journal"
	"github.com/tombee/servicehost/internal/loader"
	internallog "github.com/tombee/servicehost/internal/log"
	"github.com/tombee/servicehost/internal/metrics"
	"github.com/tombee/servicehost/internal/orchestrator"
	"github.com/tombee/servicehost/internal/tracing"
	hosterrors "github.com/tombee/servicehost/pkg/errors"
)

const instrumentationName = "github.com/tombee/servicehost/internal/host"

// ErrServiceExists is the cause of the ProtocolError returned when a create
// names a token that is already hosted.
var ErrServiceExists = errors.New("service already exists")

// Config configures a Manager.
type Config struct {
	// Namespaces allocates one namespace per created service. Required.
	Namespaces *loader.NamespaceFactory

	// Orchestrator receives completion reports. Required.
	Orchestrator orchestrator.Client

	// Journal records every executed command. Defaults to journal.Discard.
	Journal journal.Writer

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// StartSeq is reported by the bind-application handshake.
	StartSeq int64

	// Now defaults to time.Now.
	Now func() time.Time
}

// Manager owns the table of hosted services and executes lifecycle commands
// against it.
type Manager struct {
	namespaces   *loader.NamespaceFactory
	orchestrator orchestrator.Client
	journal      journal.Writer
	logger       *slog.Logger
	startSeq     int64
	now          func() time.Time

	tracer           trace.Tracer
	callbackDuration metric.Float64Histogram

	// Owner goroutine only.
	services     map[string]*service
	processState command.ProcessState
	commands     uint64

	snapshot atomic.Pointer[Snapshot]
}

var _ handoff.Callback[command.Command] = (*Manager)(nil)

// NewManager creates a Manager with an empty service table and an UNKNOWN
// process state.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Namespaces == nil {
		return nil, &hosterrors.ConfigError{Key: "namespaces", Reason: "namespace factory is required"}
	}
	if cfg.Orchestrator == nil {
		return nil, &hosterrors.ConfigError{Key: "orchestrator", Reason: "orchestrator client is required"}
	}
	if cfg.Journal == nil {
		cfg.Journal = journal.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	histogram, err := otel.Meter(instrumentationName).Float64Histogram(
		"servicehost.module.callback.duration",
		metric.WithDescription("Duration of module callback invocations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create callback histogram: %w", err)
	}

	m := &Manager{
		namespaces:       cfg.Namespaces,
		orchestrator:     cfg.Orchestrator,
		journal:          cfg.Journal,
		logger:           internallog.WithComponent(cfg.Logger, "host"),
		startSeq:         cfg.StartSeq,
		now:              cfg.Now,
		tracer:           otel.Tracer(instrumentationName),
		callbackDuration: histogram,
		services:         make(map[string]*service),
		processState:     command.ProcessStateUnknown,
	}
	m.publishSnapshot()
	return m, nil
}

// Snapshot returns the most recently published view of the manager. It is
// safe to call from any goroutine.
func (m *Manager) Snapshot() *Snapshot {
	return m.snapshot.Load()
}

// HandleTask executes one command. It implements
// handoff.Callback[command.Command].
func (m *Manager) HandleTask(ctx context.Context, cmd command.Command) error {
	cmd, correlationID := command.Unwrap(cmd)
	if correlationID != "" {
		ctx = tracing.ToContext(ctx, tracing.CorrelationID(correlationID))
	}

	kind := string(cmd.Kind())
	ctx, span := m.tracer.Start(ctx, "servicehost."+kind,
		trace.WithAttributes(
			attribute.String("servicehost.command", kind),
			attribute.String("servicehost.service_token", cmd.ServiceToken()),
		))
	defer span.End()

	start := m.now()
	err := m.dispatch(ctx, cmd)
	elapsed := m.now().Sub(start)
	m.commands++

	errorType := hosterrors.TypeOf(err)
	metrics.RecordCommand(kind, elapsed.Seconds(), errorType)
	metrics.SetHostedServices(len(m.services))

	attrs := []any{
		slog.String(internallog.CommandKey, kind),
		slog.Int64(internallog.DurationKey, elapsed.Milliseconds()),
	}
	if token := cmd.ServiceToken(); token != "" {
		attrs = append(attrs, slog.String(internallog.ServiceTokenKey, token))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.ErrorContext(ctx, "command failed", append(attrs, internallog.Error(err))...)
	} else {
		m.logger.DebugContext(ctx, "command executed", attrs...)
	}

	m.record(ctx, cmd, start, elapsed, err, correlationID)
	m.publishSnapshot()
	return err
}

func (m *Manager) record(ctx context.Context, cmd command.Command, start time.Time, elapsed time.Duration, err error, correlationID string) {
	entry := journal.Entry{
		Time:          start,
		Kind:          string(cmd.Kind()),
		ServiceToken:  cmd.ServiceToken(),
		Outcome:       journal.OutcomeOK,
		DurationMs:    elapsed.Milliseconds(),
		CorrelationID: correlationID,
	}
	switch c := cmd.(type) {
	case command.BindService:
		entry.BindToken = c.BindToken
	case command.UnbindService:
		entry.BindToken = c.BindToken
	}
	if err != nil {
		entry.Outcome = journal.OutcomeError
		entry.ErrorType = hosterrors.TypeOf(err)
		entry.Error = err.Error()
	}
	if jerr := m.journal.Append(ctx, entry); jerr != nil {
		metrics.RecordJournalError("append")
		m.logger.WarnContext(ctx, "journal append failed", internallog.Error(jerr))
	}
}

func (m *Manager) dispatch(ctx context.Context, cmd command.Command) error {
	switch c := cmd.(type) {
	case command.CreateService:
		return m.createService(ctx, c)
	case command.DestroyService:
		return m.destroyService(ctx, c)
	case command.BindService:
		return m.bindService(ctx, c)
	case command.UnbindService:
		return m.unbindService(ctx, c)
	case command.TrimMemory:
		return m.trimMemory(ctx, c)
	case command.BindApplication:
		return m.bindApplication(ctx)
	case command.SetProcessState:
		m.processState = c.State
		return nil
	default:
		return &hosterrors.ProtocolError{
			Command: string(cmd.Kind()),
			Reason:  fmt.Sprintf("unsupported command %T", cmd),
		}
	}
}

func (m *Manager) createService(ctx context.Context, c command.CreateService) error {
	if _, ok := m.services[c.Token]; ok {
		return &hosterrors.ProtocolError{
			Command: string(c.Kind()),
			Reason:  fmt.Sprintf("service %s already exists", c.Token),
			Cause:   ErrServiceExists,
		}
	}

	logger := internallog.WithService(m.logger, c.Token)
	logger.DebugContext(ctx, "creating service",
		slog.String("library", c.LibraryName),
		slog.String("symbol", c.BaseSymbolName),
		slog.String("process_state_hint", c.ProcessState.String()))

	ns, err := m.namespaces.Create(ctx, c.LibraryPaths, c.PermittedLibsDir)
	if err != nil {
		return err
	}
	mod, err := loader.Load(ctx, c.LibraryName, ns)
	if err != nil {
		m.closeNamespace(ctx, logger, ns)
		return err
	}
	sym, err := mod.Resolve(c.BaseSymbolName)
	if err != nil {
		m.closeModule(ctx, logger, mod)
		m.closeNamespace(ctx, logger, ns)
		return err
	}
	create, err := abi.AsCreateFunc(sym)
	if err != nil {
		m.closeModule(ctx, logger, mod)
		m.closeNamespace(ctx, logger, ns)
		return &hosterrors.ProtocolError{
			Command: string(c.Kind()),
			Reason:  fmt.Sprintf("symbol %s in %s has type %T", c.BaseSymbolName, c.LibraryName, sym),
			Cause:   err,
		}
	}

	cb := &abi.Callbacks{}
	m.invoke(ctx, c.Token, "create", func(ctx context.Context) { create(ctx, cb) })

	now := m.now()
	m.services[c.Token] = &service{
		token:          c.Token,
		library:        mod.Path(),
		namespace:      ns,
		module:         mod,
		callbacks:      cb,
		state:          StateCreated,
		createdAt:      now,
		lastTransition: now,
	}
	logger.InfoContext(ctx, "service created",
		slog.String(internallog.NamespaceKey, ns.Name()),
		slog.Any("callbacks", cb.Implemented()))

	return m.serviceDone(ctx, c.Token, orchestrator.DoneGeneric)
}

func (m *Manager) destroyService(ctx context.Context, c command.DestroyService) error {
	svc, err := m.lookup(c.Token)
	if err != nil {
		return err
	}
	delete(m.services, c.Token)

	if svc.callbacks.OnDestroy != nil {
		m.invoke(ctx, c.Token, "onDestroy", svc.callbacks.OnDestroy)
	}
	// Nothing obtained from the module may run once unloading starts.
	svc.callbacks = nil
	svc.transition(StateDestroyed, m.now())

	logger := internallog.WithService(m.logger, c.Token)
	m.closeModule(ctx, logger, svc.module)
	m.closeNamespace(ctx, logger, svc.namespace)
	logger.InfoContext(ctx, "service destroyed")

	return m.serviceDone(ctx, c.Token, orchestrator.DoneStop)
}

func (m *Manager) bindService(ctx context.Context, c command.BindService) error {
	svc, err := m.lookup(c.Token)
	if err != nil {
		return err
	}

	if c.Rebind {
		if svc.callbacks.OnRebind != nil {
			m.invoke(ctx, c.Token, "onRebind", func(ctx context.Context) {
				svc.callbacks.OnRebind(ctx, c.IntentHash)
			})
		}
		svc.transition(StateBound, m.now())
		return m.serviceDone(ctx, c.Token, orchestrator.DoneRebind)
	}

	if svc.callbacks.OnBind == nil {
		return &hosterrors.ProtocolError{Command: string(c.Kind()), Reason: "onBind must be implemented"}
	}
	var handle any
	m.invoke(ctx, c.Token, "onBind", func(ctx context.Context) {
		handle = svc.callbacks.OnBind(ctx, c.IntentHash, foreignString(c.Action), foreignString(c.Data))
	})

	ref, err := abi.NewReference(c.Token, c.BindToken, handle)
	if err != nil {
		return &hosterrors.ProtocolError{
			Command: string(c.Kind()),
			Reason:  fmt.Sprintf("service %s returned a null capability", c.Token),
			Cause:   err,
		}
	}
	svc.transition(StateBound, m.now())
	svc.binds++

	err = m.orchestrator.PublishService(ctx, c.Token, c.BindToken, ref)
	return m.outbound(orchestrator.CallPublishService, err)
}

func (m *Manager) unbindService(ctx context.Context, c command.UnbindService) error {
	svc, err := m.lookup(c.Token)
	if err != nil {
		return err
	}

	var wantsRebind bool
	if svc.callbacks.OnUnbind != nil {
		m.invoke(ctx, c.Token, "onUnbind", func(ctx context.Context) {
			wantsRebind = svc.callbacks.OnUnbind(ctx, c.IntentHash)
		})
	}

	if wantsRebind {
		svc.transition(StateRebinding, m.now())
		err = m.orchestrator.UnbindFinished(ctx, c.Token, c.BindToken)
		return m.outbound(orchestrator.CallUnbindFinished, err)
	}
	svc.transition(StateUnbound, m.now())
	return m.serviceDone(ctx, c.Token, orchestrator.DoneUnbind)
}

func (m *Manager) trimMemory(ctx context.Context, c command.TrimMemory) error {
	if !c.Level.Valid() {
		return &hosterrors.ProtocolError{
			Command: string(c.Kind()),
			Reason:  fmt.Sprintf("invalid trim level %d", int32(c.Level)),
		}
	}
	if c.Level == abi.TrimMemoryBackground && m.processState.IsAtLeastImportantForeground() {
		metrics.RecordSuppressedTrim()
		m.logger.DebugContext(ctx, "background trim suppressed",
			slog.String("process_state", m.processState.String()))
		return nil
	}

	for _, token := range m.sortedTokens() {
		svc := m.services[token]
		if svc.callbacks.OnTrimMemory == nil {
			continue
		}
		m.invoke(ctx, token, "onTrimMemory", func(ctx context.Context) {
			svc.callbacks.OnTrimMemory(ctx, c.Level)
		})
	}
	return nil
}

func (m *Manager) bindApplication(ctx context.Context) error {
	err := m.orchestrator.FinishAttachApplication(ctx, m.startSeq, 0)
	return m.outbound(orchestrator.CallFinishAttachApplication, err)
}

func (m *Manager) lookup(token string) (*service, error) {
	svc, ok := m.services[token]
	if !ok {
		return nil, &hosterrors.NotFoundError{Resource: "service", ID: token}
	}
	return svc, nil
}

func (m *Manager) serviceDone(ctx context.Context, token string, kind orchestrator.DoneKind) error {
	err := m.orchestrator.ServiceDoneExecuting(ctx, token, kind, 0, 0)
	return m.outbound(orchestrator.CallServiceDoneExecuting, err)
}

// outbound records an orchestrator call and wraps its failure. State changes
// made before the call stand.
func (m *Manager) outbound(call string, err error) error {
	metrics.RecordOutboundCall(call, err)
	if err != nil {
		return &hosterrors.TransportError{Call: call, Cause: err}
	}
	return nil
}

// invoke runs one piece of module code inside a child span.
func (m *Manager) invoke(ctx context.Context, token, callback string, fn func(context.Context)) {
	ctx, span := m.tracer.Start(ctx, "servicehost.module."+callback,
		trace.WithAttributes(attribute.String("servicehost.service_token", token)))
	defer span.End()

	start := time.Now()
	fn(ctx)
	m.callbackDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("callback", callback)))
}

func (m *Manager) closeModule(ctx context.Context, logger *slog.Logger, mod *loader.Module) {
	if err := mod.Close(ctx); err != nil {
		logger.WarnContext(ctx, "module close failed", internallog.Error(err))
	}
}

func (m *Manager) closeNamespace(ctx context.Context, logger *slog.Logger, ns *loader.Namespace) {
	if err := ns.Close(ctx); err != nil {
		logger.WarnContext(ctx, "namespace close failed",
			slog.String(internallog.NamespaceKey, ns.Name()), internallog.Error(err))
	}
}

func (m *Manager) sortedTokens() []string {
	tokens := make([]string, 0, len(m.services))
	for token := range m.services {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

// foreignString converts an optional string for a module. Strings that
// cannot cross as NUL-terminated text are passed as absent.
func foreignString(s *string) *string {
	if s == nil || strings.IndexByte(*s, 0) >= 0 {
		return nil
	}
	v := *s
	return &v
}
