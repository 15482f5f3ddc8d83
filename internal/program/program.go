// Package program implements the persistent Program object and its
// scheduler (spec.md §4.6, C7): durable on-disk configuration plus a
// state machine that launches processes on NEVER/ALWAYS/INTERVAL/CRON
// triggers and records the last spawn/error.
//
// Grounded on _examples/original_source/src/redapid/program_scheduler.h
// for the state machine shape, and on github.com/robfig/cron/v3 (present
// in canonical-lxd's own go.mod) for CRON-mode trigger computation.
package program

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Tinkerforge/red-brick-apid/internal/apierr"
	"github.com/Tinkerforge/red-brick-apid/internal/logging"
	"github.com/Tinkerforge/red-brick-apid/internal/objects"
)

// Redirection is the StdioRedirection enum from spec.md §3.
type Redirection uint8

const (
	RedirectionDevNull Redirection = iota
	RedirectionPipe
	RedirectionFile
	RedirectionIndividualLog
	RedirectionContinuousLog
	RedirectionStdout // stderr only: mirror whatever stdout is redirected to
)

// Stream identifies which of a program's three standard streams a
// Redirection applies to, since the legal redirection set differs per
// stream (spec.md §9 "Enum ranges").
type Stream uint8

const (
	StreamStdin Stream = iota
	StreamStdout
	StreamStderr
)

func (r Redirection) validFor(stream Stream) bool {
	switch stream {
	case StreamStdin:
		return r == RedirectionDevNull || r == RedirectionFile
	case StreamStdout:
		return r == RedirectionDevNull || r == RedirectionPipe || r == RedirectionFile ||
			r == RedirectionIndividualLog || r == RedirectionContinuousLog
	case StreamStderr:
		return r == RedirectionDevNull || r == RedirectionPipe || r == RedirectionFile ||
			r == RedirectionIndividualLog || r == RedirectionContinuousLog || r == RedirectionStdout
	default:
		return false
	}
}

// StartMode is the ScheduleStartMode enum from spec.md §3/§4.6.
type StartMode uint8

const (
	StartModeNever StartMode = iota
	StartModeAlways
	StartModeInterval
	StartModeCron
)

// State is the scheduler state machine's current position, per the
// diagram in spec.md §4.6.
type State uint8

const (
	StateWaitingForStartCondition State = iota
	StateDelayingStart
	StateWaitingForRepeatCondition
	StateErrorOccurred
)

// minStartIntervalMillis is the floor spec.md §4.6 imposes on INTERVAL
// mode; start_interval == 0 is rejected outright at set-time rather than
// silently clamped, per §9's resolution of that open question.
const minStartIntervalMillis = 1000

// Program is the concrete object value stored behind objects.TypeProgram.
type Program struct {
	mu sync.Mutex

	identifier    string
	rootDirectory string

	command          objects.ID
	arguments        objects.ID
	environment      objects.ID
	workingDirectory objects.ID

	stdinRedirection  Redirection
	stdinFileName     objects.ID
	stdoutRedirection Redirection
	stdoutFileName    objects.ID
	stderrRedirection Redirection
	stderrFileName    objects.ID

	startMode          StartMode
	continueAfterError bool
	startInterval      uint32 // milliseconds
	startFields        string // cron fields, e.g. "*/5 * * * *" or "@reboot"

	customOptions map[string]string

	state               State
	lastSpawnedProcess  objects.ID
	lastSpawnTimestamp  int64
	lastErrorMessage    string
	lastErrorTimestamp  int64
	lastErrorInternal   bool // true if the daemon itself raised the error, not the child exit

	purged bool

	table    *objects.Table
	cronJob  cron.EntryID
	cronRing *cron.Cron
	timer    *time.Timer
}

// Lookup resolves id to its *Program, type-checking against
// objects.TypeProgram.
func Lookup(table *objects.Table, id objects.ID) (*Program, error) {
	obj, err := table.Lookup(id, objects.TypeProgram)
	if err != nil {
		return nil, err
	}

	return obj.Value.(*Program), nil
}

// Config is the full set of durable fields needed to Define a program,
// mirroring program.conf's key set (spec.md §6).
type Config struct {
	Identifier       string
	RootDirectory    string
	Command          objects.ID
	Arguments        objects.ID
	Environment      objects.ID
	WorkingDirectory objects.ID

	StdinRedirection  Redirection
	StdinFileName     objects.ID
	StdoutRedirection Redirection
	StdoutFileName    objects.ID
	StderrRedirection Redirection
	StderrFileName    objects.ID

	StartMode           StartMode
	ContinueAfterError  bool
	StartInterval       uint32
	StartFields         string
	CustomOptions       map[string]string
}

// Define creates a new persistent program object, validates its stdio
// redirection legality and schedule, persists program.conf, and arms the
// scheduler.
func Define(table *objects.Table, cfg Config) (objects.ID, *Program, error) {
	if !cfg.StdinRedirection.validFor(StreamStdin) ||
		!cfg.StdoutRedirection.validFor(StreamStdout) ||
		!cfg.StderrRedirection.validFor(StreamStderr) {
		return 0, nil, apierr.New(apierr.InvalidParameter)
	}

	if err := validateSchedule(cfg.StartMode, cfg.StartInterval, cfg.StartFields); err != nil {
		return 0, nil, err
	}

	p := &Program{
		identifier:         cfg.Identifier,
		rootDirectory:      cfg.RootDirectory,
		command:            cfg.Command,
		arguments:          cfg.Arguments,
		environment:        cfg.Environment,
		workingDirectory:   cfg.WorkingDirectory,
		stdinRedirection:   cfg.StdinRedirection,
		stdinFileName:      cfg.StdinFileName,
		stdoutRedirection:  cfg.StdoutRedirection,
		stdoutFileName:     cfg.StdoutFileName,
		stderrRedirection:  cfg.StderrRedirection,
		stderrFileName:     cfg.StderrFileName,
		startMode:          cfg.StartMode,
		continueAfterError: cfg.ContinueAfterError,
		startInterval:      cfg.StartInterval,
		startFields:        cfg.StartFields,
		customOptions:      copyOptions(cfg.CustomOptions),
		state:              StateWaitingForStartCondition,
		table:              table,
	}

	id, err := table.Insert(objects.TypeProgram, p, func() { p.destroy(table) })
	if err != nil {
		return 0, nil, err
	}

	for _, ref := range []objects.ID{p.command, p.arguments, p.environment, p.workingDirectory} {
		addRef(table, ref)
	}

	if err := p.save(); err != nil {
		logging.Warnf("program", "could not persist program %q: %v", p.identifier, err)
	}

	p.arm()

	return id, p, nil
}

func copyOptions(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}

	return out
}

func addRef(table *objects.Table, id objects.ID) {
	if obj, err := table.LookupAny(id); err == nil {
		table.AddInternalRef(obj)
	}
}

func releaseRef(table *objects.Table, id objects.ID) {
	if obj, err := table.LookupAny(id); err == nil {
		table.RemoveInternalRef(obj)
	}
}

func validateSchedule(mode StartMode, intervalMillis uint32, fields string) error {
	switch mode {
	case StartModeInterval:
		if intervalMillis == 0 || intervalMillis < minStartIntervalMillis {
			return apierr.New(apierr.InvalidParameter)
		}
	case StartModeCron:
		if fields != "@reboot" {
			if _, err := cron.ParseStandard(fields); err != nil {
				return apierr.New(apierr.InvalidParameter)
			}
		}
	case StartModeNever, StartModeAlways:
		// no schedule fields to validate
	default:
		return apierr.New(apierr.InvalidParameter)
	}

	return nil
}

// Identifier returns the program's filesystem-safe name.
func (p *Program) Identifier() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identifier
}

// RootDirectory returns the program's on-disk root.
func (p *Program) RootDirectory() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rootDirectory
}

// Command returns the object ids of the current command string, arguments
// list, environment list and working directory string, in that order.
func (p *Program) Command() (objects.ID, objects.ID, objects.ID, objects.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.command, p.arguments, p.environment, p.workingDirectory
}

// SetCommand replaces the command/arguments/environment/working directory,
// swapping internal refs and re-persisting, per spec.md §6's
// "set_command".
func (p *Program) SetCommand(table *objects.Table, command, arguments, environment, workingDirectory objects.ID) error {
	p.mu.Lock()
	old := []objects.ID{p.command, p.arguments, p.environment, p.workingDirectory}
	if p.purged {
		p.mu.Unlock()
		return apierr.New(apierr.DoesNotExist)
	}

	p.command, p.arguments, p.environment, p.workingDirectory = command, arguments, environment, workingDirectory
	p.mu.Unlock()

	for _, ref := range old {
		releaseRef(table, ref)
	}

	for _, ref := range []objects.ID{command, arguments, environment, workingDirectory} {
		addRef(table, ref)
	}

	return p.save()
}

// StdioRedirection returns the redirection mode and (when applicable) the
// target file name for each stream.
func (p *Program) StdioRedirection() (stdin, stdout, stderr Redirection, stdinFile, stdoutFile, stderrFile objects.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stdinRedirection, p.stdoutRedirection, p.stderrRedirection, p.stdinFileName, p.stdoutFileName, p.stderrFileName
}

// SetStdioRedirection validates and replaces the stdio redirection config.
func (p *Program) SetStdioRedirection(stdin, stdout, stderr Redirection, stdinFile, stdoutFile, stderrFile objects.ID) error {
	if !stdin.validFor(StreamStdin) || !stdout.validFor(StreamStdout) || !stderr.validFor(StreamStderr) {
		return apierr.New(apierr.InvalidParameter)
	}

	p.mu.Lock()
	if p.purged {
		p.mu.Unlock()
		return apierr.New(apierr.DoesNotExist)
	}

	p.stdinRedirection, p.stdoutRedirection, p.stderrRedirection = stdin, stdout, stderr
	p.stdinFileName, p.stdoutFileName, p.stderrFileName = stdinFile, stdoutFile, stderrFile
	p.mu.Unlock()

	return p.save()
}

// Schedule returns the current start mode, continue-after-error flag,
// interval, and cron field string.
func (p *Program) Schedule() (StartMode, bool, uint32, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startMode, p.continueAfterError, p.startInterval, p.startFields
}

// SetSchedule validates and installs a new schedule, re-arming the
// scheduler.
func (p *Program) SetSchedule(mode StartMode, continueAfterError bool, intervalMillis uint32, fields string) error {
	if err := validateSchedule(mode, intervalMillis, fields); err != nil {
		return err
	}

	p.mu.Lock()
	if p.purged {
		p.mu.Unlock()
		return apierr.New(apierr.DoesNotExist)
	}

	p.disarmLocked()
	p.startMode = mode
	p.continueAfterError = continueAfterError
	p.startInterval = intervalMillis
	p.startFields = fields
	p.state = StateWaitingForStartCondition
	p.mu.Unlock()

	if err := p.save(); err != nil {
		logging.Warnf("program", "could not persist program %q: %v", p.identifier, err)
	}

	p.arm()

	return nil
}

// ContinueSchedule exits ERROR_OCCURRED and re-arms the scheduler, per
// spec.md §4.6's "continue_schedule".
func (p *Program) ContinueSchedule() error {
	p.mu.Lock()
	if p.purged {
		p.mu.Unlock()
		return apierr.New(apierr.DoesNotExist)
	}

	p.state = StateWaitingForStartCondition
	p.mu.Unlock()

	p.arm()

	return nil
}

// LastSpawn returns the last spawned process's internal-ref'd object id
// (0 if none yet) and the timestamp it was spawned at.
func (p *Program) LastSpawn() (objects.ID, int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSpawnedProcess, p.lastSpawnTimestamp
}

// LastError returns the last scheduler error message, whether it
// originated inside the daemon (as opposed to a nonzero child exit code),
// and its timestamp.
func (p *Program) LastError() (string, bool, int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErrorMessage, p.lastErrorInternal, p.lastErrorTimestamp
}

// State reports the scheduler's current state.
func (p *Program) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Purge removes the program's root directory and marks it purged;
// subsequent mutators fail with DOES_NOT_EXIST, per spec.md §4.6.
func (p *Program) Purge(table *objects.Table) error {
	p.mu.Lock()
	p.purged = true
	p.disarmLocked()
	root := p.rootDirectory
	p.mu.Unlock()

	// Internal refs on command/arguments/environment/working directory and
	// the last spawned process are released by destroy(), once the
	// client's own external reference is released — purge only disables
	// further scheduling and mutation, per spec.md §4.6.
	return removeAll(root)
}

func (p *Program) destroy(table *objects.Table) {
	p.mu.Lock()
	p.disarmLocked()
	refs := []objects.ID{p.command, p.arguments, p.environment, p.workingDirectory, p.lastSpawnedProcess}
	p.mu.Unlock()

	for _, ref := range refs {
		releaseRef(table, ref)
	}
}
