package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/approval/internal/approval"
	"github.com/roach88/approval/internal/authz"
	"github.com/roach88/approval/internal/events"
	"github.com/roach88/approval/internal/lock"
	"github.com/roach88/approval/internal/metrics"
	"github.com/roach88/approval/internal/store"
)

// EngineOptions holds the flags shared by every command that opens an engine.
// Empty values fall back to the APPROVAL_* environment variables.
type EngineOptions struct {
	*RootOptions
	DB           string   // SQLite database path
	ModelsDir    string   // directory of CUE model declarations
	PolicyModel  string   // casbin model file (optional)
	Policy       string   // casbin policy CSV (optional)
	Staff        []string // privileged identities when no policy file is given
	RedisAddr    string   // distributed lock backend (optional)
	KafkaBrokers string   // comma-separated event brokers (optional)
	KafkaTopic   string
}

func addEngineFlags(cmd *cobra.Command, opts *EngineOptions) {
	f := cmd.Flags()
	f.StringVar(&opts.DB, "db", "", "SQLite database path (env "+EnvDB+")")
	f.StringVar(&opts.ModelsDir, "models", "", "directory of CUE model declarations (env "+EnvModels+")")
	f.StringVar(&opts.PolicyModel, "policy-model", "", "casbin model file (env "+EnvPolicyModel+")")
	f.StringVar(&opts.Policy, "policy", "", "casbin policy CSV with staff and forbidden rules (env "+EnvPolicy+")")
	f.StringSliceVar(&opts.Staff, "staff", nil, "privileged identities when no policy file is given (env "+EnvStaff+")")
	f.StringVar(&opts.RedisAddr, "redis", "", "Redis address for record locks (env "+EnvRedisAddr+")")
	f.StringVar(&opts.KafkaBrokers, "kafka-brokers", "", "comma-separated Kafka brokers for events (env "+EnvKafkaBrokers+")")
	f.StringVar(&opts.KafkaTopic, "kafka-topic", "", "Kafka topic for events (env "+EnvKafkaTopic+")")
}

// resolveEnv fills empty options from the environment.
func (o *EngineOptions) resolveEnv() {
	o.DB = orEnv(o.DB, EnvDB)
	o.ModelsDir = orEnv(o.ModelsDir, EnvModels)
	o.PolicyModel = orEnv(o.PolicyModel, EnvPolicyModel)
	o.Policy = orEnv(o.Policy, EnvPolicy)
	o.RedisAddr = orEnv(o.RedisAddr, EnvRedisAddr)
	o.KafkaBrokers = orEnv(o.KafkaBrokers, EnvKafkaBrokers)
	o.KafkaTopic = orEnv(o.KafkaTopic, EnvKafkaTopic)
	if len(o.Staff) == 0 {
		if staff := orEnv("", EnvStaff); staff != "" {
			o.Staff = strings.Split(staff, ",")
		}
	}
}

// session is an engine with everything it was opened over.
type session struct {
	engine  *approval.Engine
	store   *store.Store
	metrics *prometheus.Registry
	logger  *slog.Logger
	closers []func() error
}

// Close releases the store, the lock backend and the event publisher.
func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// openEngine wires an engine from opts. Every model in the models directory
// is registered; the caller must Close the session.
func openEngine(ctx context.Context, opts *EngineOptions, cmd *cobra.Command) (*session, error) {
	opts.resolveEnv()
	if opts.DB == "" {
		return nil, &SetupError{Code: ErrCodeBadInput, Err: errors.New("--db is required")}
	}
	if opts.ModelsDir == "" {
		return nil, &SetupError{Code: ErrCodeBadInput, Err: errors.New("--models is required")}
	}

	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	loadResult, loadErrs := LoadModels(opts.ModelsDir, LoadModeFailFast)
	if len(loadErrs) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrs[0], &loadErr) {
			return nil, &SetupError{Code: loadErr.Code, Err: loadErr}
		}
		return nil, &SetupError{Code: ErrCodeGeneric, Err: loadErrs[0]}
	}

	checker, err := openAuthorizer(opts)
	if err != nil {
		return nil, &SetupError{Code: ErrCodeConfig, Err: err}
	}

	registry := approval.NewRegistry()
	for _, cfg := range loadResult.Models {
		hooks := approval.Hooks{
			Authors:   approval.ActorAuthors(),
			Privilege: checker,
			Forbidden: checker,
		}
		if cfg.AuthorsField != "" {
			hooks.Authors = approval.FieldAuthors(cfg.AuthorsField)
		}
		if err := registry.Register(cfg, hooks); err != nil {
			return nil, &SetupError{Code: ErrCodeConfig, Err: err}
		}
	}

	st, err := store.Open(opts.DB)
	if err != nil {
		return nil, &SetupError{Code: ErrCodeCommitFailure, Err: fmt.Errorf("open database: %w", err)}
	}
	s := &session{
		store:   st,
		logger:  logger,
		metrics: prometheus.NewRegistry(),
		closers: []func() error{st.Close},
	}

	engineOpts := []approval.EngineOption{
		approval.WithLogger(logger),
		approval.WithListener(metrics.New(s.metrics)),
	}

	if opts.RedisAddr != "" {
		locker, err := lock.Dial(ctx, opts.RedisAddr)
		if err != nil {
			_ = s.Close()
			return nil, &SetupError{Code: ErrCodeGeneric, Err: err}
		}
		s.closers = append(s.closers, locker.Close)
		engineOpts = append(engineOpts, approval.WithLocker(locker))
	}

	// Each invocation has its own event clock; messages carry the persisted
	// sandbox revision for ordering across invocations.
	if opts.KafkaBrokers != "" {
		publisher := events.NewPublisher(events.ParseConfig(opts.KafkaBrokers, opts.KafkaTopic), logger)
		s.closers = append(s.closers, publisher.Close)
		engineOpts = append(engineOpts, approval.WithListener(publisher))
	}

	s.engine = approval.New(st, registry, engineOpts...)
	logger.Debug("engine opened", "db", opts.DB, "models", registry.Types())
	return s, nil
}

// openAuthorizer loads the casbin policy file, or builds one from --staff.
func openAuthorizer(opts *EngineOptions) (*authz.Authorizer, error) {
	if opts.Policy != "" {
		return authz.NewFromFiles(opts.PolicyModel, opts.Policy)
	}
	a, err := authz.New()
	if err != nil {
		return nil, err
	}
	for _, id := range opts.Staff {
		if id = strings.TrimSpace(id); id != "" {
			if err := a.Grant(id); err != nil {
				return nil, err
			}
		}
	}
	return a, nil
}

// logMetrics writes a debug line per metric series gathered during the
// command.
func (s *session) logMetrics() {
	families, err := s.metrics.Gather()
	if err != nil {
		s.logger.Warn("gather metrics", "error", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			attrs := []any{"metric", mf.GetName()}
			for _, lp := range m.GetLabel() {
				attrs = append(attrs, lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				attrs = append(attrs, "value", m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				attrs = append(attrs, "value", m.GetGauge().GetValue())
			}
			s.logger.Debug("metric", attrs...)
		}
	}
}

// SetupError is a failure to open the engine: bad flags, unloadable models,
// an unreadable policy or an unreachable backend.
type SetupError struct {
	Code string
	Err  error
}

func (e *SetupError) Error() string {
	return e.Err.Error()
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// engineErrorCode maps an engine error to its E2xx code.
func engineErrorCode(err error) string {
	switch {
	case approval.IsConfigError(err):
		return ErrCodeConfig
	case approval.IsInvalidStateError(err):
		return ErrCodeInvalidState
	case approval.IsCommitFailure(err):
		return ErrCodeCommitFailure
	case approval.IsAuthorResolutionError(err):
		return ErrCodeAuthorResolution
	case approval.IsRuleEvaluationError(err):
		return ErrCodeRuleEvaluation
	default:
		return ErrCodeGeneric
	}
}

// reportError writes err through the formatter and returns the matching exit
// error. Setup errors exit 2; engine errors exit 1.
func reportError(formatter *OutputFormatter, err error) error {
	var setupErr *SetupError
	if errors.As(err, &setupErr) {
		_ = formatter.Error(setupErr.Code, setupErr.Error(), nil)
		return WrapExitError(ExitCommandError, setupErr.Code, setupErr.Err)
	}
	code := engineErrorCode(err)
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(ExitFailure, code, err)
}
