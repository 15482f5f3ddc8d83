package program

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Tinkerforge/red-brick-apid/internal/listobj"
	"github.com/Tinkerforge/red-brick-apid/internal/logging"
	"github.com/Tinkerforge/red-brick-apid/internal/objects"
	"github.com/Tinkerforge/red-brick-apid/internal/strobj"
)

const configFileName = "program.conf"

// save rewrites program.conf by folding the program's current field
// values into a key/value map and atomically replacing the file (write
// to a temp file under the same directory, then rename), per spec.md
// §4.6's persistence rule.
func (p *Program) save() error {
	p.mu.Lock()
	kv := p.toKeyValuesLocked()
	root := p.rootDirectory
	p.mu.Unlock()

	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}

	path := filepath.Join(root, configFileName)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := bufio.NewWriter(f)
	for _, k := range keys {
		fmt.Fprintf(w, "%s = %s\n", k, kv[k])
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

func (p *Program) toKeyValuesLocked() map[string]string {
	kv := map[string]string{
		"identifier":           p.identifier,
		"start_mode":           strconv.Itoa(int(p.startMode)),
		"continue_after_error": strconv.FormatBool(p.continueAfterError),
		"start_interval":       strconv.FormatUint(uint64(p.startInterval), 10),
		"start_fields":         p.startFields,
		"stdin_redirection":    strconv.Itoa(int(p.stdinRedirection)),
		"stdout_redirection":   strconv.Itoa(int(p.stdoutRedirection)),
		"stderr_redirection":   strconv.Itoa(int(p.stderrRedirection)),
		"working_directory":    lookupStringText(p.table, p.workingDirectory),
		"executable":           lookupStringText(p.table, p.command),
	}

	writeStringListKeys(kv, "arguments", p.table, p.arguments)
	writeStringListKeys(kv, "environment", p.table, p.environment)

	for k, v := range p.customOptions {
		kv["custom."+k] = v
	}

	return kv
}

func lookupStringText(table *objects.Table, id objects.ID) string {
	s, err := strobj.Lookup(table, id)
	if err != nil {
		return ""
	}

	return string(s.Bytes())
}

func writeStringListKeys(kv map[string]string, prefix string, table *objects.Table, listID objects.ID) {
	list, err := listobj.Lookup(table, listID)
	if err != nil {
		kv[prefix+".length"] = "0"
		return
	}

	items := list.Items()
	kv[prefix+".length"] = strconv.Itoa(len(items))

	for i, itemID := range items {
		kv[fmt.Sprintf("%s.item%d", prefix, i)] = lookupStringText(table, itemID)
	}
}

// Load reconstructs a Program's Config from an on-disk program.conf,
// allocating fresh string/list objects in table for the executable,
// arguments, environment, and working directory fields — the persisted
// form stores plain text, not object ids, since ids are only meaningful
// for the lifetime of one daemon run.
func Load(table *objects.Table, identifier, root string) (Config, error) {
	path := filepath.Join(root, configFileName)
	kv, warnings := loadKeyValues(path)

	for _, w := range warnings {
		logging.Warnf("program", "%s: %s", path, w)
	}

	commandID, _, err := strobj.Allocate(table, 0, []byte(kv["executable"]))
	if err != nil {
		return Config{}, err
	}

	workingDirectoryID, _, err := strobj.Allocate(table, 0, []byte(kv["working_directory"]))
	if err != nil {
		return Config{}, err
	}

	argumentsID, err := readStringList(table, kv, "arguments")
	if err != nil {
		return Config{}, err
	}

	environmentID, err := readStringList(table, kv, "environment")
	if err != nil {
		return Config{}, err
	}

	custom := make(map[string]string)
	for k, v := range kv {
		if rest, ok := strings.CutPrefix(k, "custom."); ok {
			custom[rest] = v
		}
	}

	return Config{
		Identifier:          identifier,
		RootDirectory:       root,
		Command:             commandID,
		Arguments:           argumentsID,
		Environment:         environmentID,
		WorkingDirectory:    workingDirectoryID,
		StdinRedirection:    Redirection(parseInt(kv["stdin_redirection"], 0)),
		StdoutRedirection:   Redirection(parseInt(kv["stdout_redirection"], 0)),
		StderrRedirection:   Redirection(parseInt(kv["stderr_redirection"], 0)),
		StartMode:           StartMode(parseInt(kv["start_mode"], 0)),
		ContinueAfterError:  parseBool(kv["continue_after_error"], false),
		StartInterval:       uint32(parseInt(kv["start_interval"], 0)),
		StartFields:         kv["start_fields"],
		CustomOptions:       custom,
	}, nil
}

func readStringList(table *objects.Table, kv map[string]string, prefix string) (objects.ID, error) {
	length := int(parseInt(kv[prefix+".length"], 0))

	listID, list, err := listobj.Allocate(table, uint32(length))
	if err != nil {
		return 0, err
	}

	for i := 0; i < length; i++ {
		itemID, _, err := strobj.Allocate(table, 0, []byte(kv[fmt.Sprintf("%s.item%d", prefix, i)]))
		if err != nil {
			return 0, err
		}

		if err := list.Append(objects.TypeString, itemID); err != nil {
			return 0, err
		}

		table.AddInternalRef(mustLookupAny(table, itemID))
	}

	return listID, nil
}

func mustLookupAny(table *objects.Table, id objects.ID) *objects.Object {
	obj, _ := table.LookupAny(id)
	return obj
}

// loadKeyValues reads a flat key/value program.conf, tolerating absent
// files (a fresh program directory) and malformed lines (logged as
// warnings, never fatal — spec.md §7's "configuration parse warnings do
// not fail program load").
func loadKeyValues(path string) (map[string]string, []string) {
	kv := make(map[string]string)

	data, err := os.ReadFile(path)
	if err != nil {
		return kv, nil
	}

	var warnings []string

	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			warnings = append(warnings, fmt.Sprintf("line %d: missing '='", i+1))
			continue
		}

		kv[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}

	return kv, warnings
}

// parseInt accepts decimal or 0b-prefixed binary values, per spec.md §6.
func parseInt(s string, fallback int64) int64 {
	if strings.HasPrefix(s, "0b") || strings.HasPrefix(s, "0B") {
		v, err := strconv.ParseInt(s[2:], 2, 64)
		if err != nil {
			return fallback
		}

		return v
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}

	return v
}

// parseBool is case-insensitive true/false, per spec.md §6.
func parseBool(s string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true
	case "false":
		return false
	default:
		return fallback
	}
}

func removeAll(root string) error {
	if root == "" {
		return nil
	}

	return os.RemoveAll(root)
}
