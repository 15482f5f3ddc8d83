package program

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Tinkerforge/red-brick-apid/internal/apierr"
	"github.com/Tinkerforge/red-brick-apid/internal/fileobj"
	"github.com/Tinkerforge/red-brick-apid/internal/logging"
	"github.com/Tinkerforge/red-brick-apid/internal/objects"
	"github.com/Tinkerforge/red-brick-apid/internal/process"
	"github.com/Tinkerforge/red-brick-apid/internal/strobj"
)

func stringAllocate(table *objects.Table, s string) (objects.ID, error) {
	id, _, err := strobj.Allocate(table, uint32(len(s)), []byte(s))
	return id, err
}

// arm installs whatever trigger the current start mode requires. Called
// with p.mu unlocked; it takes the lock itself only for the brief reads
// it needs.
func (p *Program) arm() {
	p.mu.Lock()
	mode := p.startMode
	state := p.state
	p.mu.Unlock()

	if state == StateErrorOccurred {
		return
	}

	switch mode {
	case StartModeNever:
		// stays in WAITING_FOR_START_CONDITION forever.
	case StartModeAlways:
		p.setState(StateDelayingStart)
		go p.triggerSpawn()
	case StartModeInterval:
		p.armInterval()
	case StartModeCron:
		p.armCron()
	}
}

func (p *Program) armInterval() {
	p.mu.Lock()
	interval := p.startInterval
	p.mu.Unlock()

	p.setState(StateDelayingStart)

	p.mu.Lock()
	p.timer = time.AfterFunc(time.Duration(interval)*time.Millisecond, p.triggerSpawn)
	p.mu.Unlock()
}

func (p *Program) armCron() {
	p.mu.Lock()
	fields := p.startFields
	p.mu.Unlock()

	if fields == "@reboot" {
		// "@reboot" fires once each time arm() runs: from Define,
		// SetSchedule and ContinueSchedule. Load only reads the config;
		// a loaded program fires once it is passed to Define.
		p.setState(StateDelayingStart)
		go p.triggerSpawn()
		return
	}

	schedule, err := cron.ParseStandard(fields)
	if err != nil {
		p.recordError(fmt.Sprintf("invalid cron fields %q: %v", fields, err), true)
		return
	}

	ring := cron.New()
	id := ring.Schedule(schedule, cron.FuncJob(p.triggerSpawn))
	ring.Start()

	p.mu.Lock()
	p.cronRing = ring
	p.cronJob = id
	p.state = StateDelayingStart
	p.mu.Unlock()
}

// disarmLocked tears down whatever timer/cron entry is active. Must be
// called with p.mu held.
func (p *Program) disarmLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}

	if p.cronRing != nil {
		p.cronRing.Stop()
		p.cronRing = nil
	}
}

// triggerSpawn fires one process launch attempt and is the single entry
// point INTERVAL/ALWAYS/CRON all converge on.
func (p *Program) triggerSpawn() {
	p.mu.Lock()
	if p.purged || p.state == StateErrorOccurred {
		p.mu.Unlock()
		return
	}

	table := p.table
	command, arguments, environment, workingDirectory := p.command, p.arguments, p.environment, p.workingDirectory
	stdinRedir, stdoutRedir, stderrRedir := p.stdinRedirection, p.stdoutRedirection, p.stderrRedirection
	stdinFile, stdoutFile, stderrFile := p.stdinFileName, p.stdoutFileName, p.stderrFileName
	root := p.rootDirectory
	p.mu.Unlock()

	stdinID, err := p.openStdio(table, StreamStdin, stdinRedir, stdinFile, root, "stdin")
	if err != nil {
		p.recordError(fmt.Sprintf("could not prepare stdin: %v", err), true)
		return
	}

	stdoutID, err := p.openStdio(table, StreamStdout, stdoutRedir, stdoutFile, root, "stdout")
	if err != nil {
		p.recordError(fmt.Sprintf("could not prepare stdout: %v", err), true)
		return
	}

	// stderr mirroring stdout (RedirectionStdout) reuses the same File id
	// for both roles; process.Spawn adds one internal ref per stdio role
	// regardless, so the shared file ends up with two internal refs, same
	// as if two distinct files had been opened.
	stderrID := stdoutID
	if stderrRedir != RedirectionStdout {
		stderrID, err = p.openStdio(table, StreamStderr, stderrRedir, stderrFile, root, "stderr")
		if err != nil {
			p.recordError(fmt.Sprintf("could not prepare stderr: %v", err), true)
			return
		}
	}

	procID, proc, err := process.Spawn(table, command, arguments, environment, workingDirectory, 0, 0, stdinID, stdoutID, stderrID)

	table.Release(stdinID)
	table.Release(stdoutID)
	if stderrRedir != RedirectionStdout {
		table.Release(stderrID)
	}

	if err != nil {
		p.recordError(fmt.Sprintf("spawn failed: %v", err), true)
		return
	}

	p.setState(StateWaitingForRepeatCondition)

	procObj, _ := table.LookupAny(procID)
	table.AddInternalRef(procObj)

	p.mu.Lock()
	previous := p.lastSpawnedProcess
	p.lastSpawnedProcess = procID
	p.lastSpawnTimestamp = time.Now().Unix()
	p.mu.Unlock()

	releaseRef(table, previous)

	go p.watch(proc)
}

// openStdio resolves a redirection setting to a concrete File object id
// for this spawn, per spec.md §3/§6. INDIVIDUAL_LOG opens a new
// timestamped append-mode log file directly under root for each spawn,
// CONTINUOUS_LOG appends to one <label>.log under root, and PIPE creates
// an unnamed pipe. Log files are never rotated.
func (p *Program) openStdio(table *objects.Table, stream Stream, redirection Redirection, fileNameID objects.ID, root, label string) (objects.ID, error) {
	switch redirection {
	case RedirectionDevNull:
		return openNamed(table, os.DevNull, stream)
	case RedirectionFile:
		if fileNameID == 0 {
			return 0, apierr.New(apierr.InvalidParameter)
		}

		return openByNameID(table, fileNameID, stream)
	case RedirectionIndividualLog:
		path := filepath.Join(root, fmt.Sprintf("%s-%d.log", label, time.Now().UnixNano()))
		return openNamed(table, path, stream)
	case RedirectionContinuousLog:
		path := filepath.Join(root, label+".log")
		return openNamed(table, path, stream)
	case RedirectionPipe:
		id, _, err := fileobj.CreatePipe(table, 0)
		return id, err
	default:
		return 0, apierr.New(apierr.InvalidParameter)
	}
}

func openNamed(table *objects.Table, path string, stream Stream) (objects.ID, error) {
	nameID, _, err := stringAllocate(table, path)
	if err != nil {
		return 0, err
	}

	id, err := openByNameID(table, nameID, stream)
	releaseRef(table, nameID)

	return id, err
}

func openByNameID(table *objects.Table, nameID objects.ID, stream Stream) (objects.ID, error) {
	flags := fileobj.FlagReadOnly
	if stream != StreamStdin {
		flags = fileobj.FlagWriteOnly | fileobj.FlagCreate | fileobj.FlagAppend
	}

	id, _, err := fileobj.Open(table, nameID, flags, 0600, 0, 0)
	return id, err
}

// watch drains one process's state changes until a fatal transition,
// applying the exit-code/continue-after-error policy from spec.md §4.6.
func (p *Program) watch(proc *process.Process) {
	for change := range proc.Changes() {
		proc.ApplyChange(change)

		if !change.Fatal {
			continue
		}

		success := change.State == process.StateExited && change.ExitCode == 0

		p.mu.Lock()
		continueAfterError := p.continueAfterError
		mode := p.startMode
		purged := p.purged
		p.mu.Unlock()

		if purged {
			return
		}

		if !success {
			p.recordError(fmt.Sprintf("process exited with state=%d code=%d", change.State, change.ExitCode), false)

			if !continueAfterError {
				p.setState(StateErrorOccurred)
				return
			}
		}

		switch mode {
		case StartModeAlways:
			p.setState(StateDelayingStart)
			go p.triggerSpawn()
		case StartModeInterval:
			p.armInterval()
		case StartModeCron:
			p.setState(StateWaitingForRepeatCondition)
			// the cron ring fires the next trigger on its own schedule.
		case StartModeNever:
			p.setState(StateWaitingForStartCondition)
		}

		return
	}
}

func (p *Program) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Program) recordError(message string, internal bool) {
	p.mu.Lock()
	p.lastErrorMessage = message
	p.lastErrorInternal = internal
	p.lastErrorTimestamp = time.Now().Unix()
	p.mu.Unlock()

	logging.Warnf("program", "program %q: %s", p.Identifier(), message)
}
