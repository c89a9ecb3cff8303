/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package testing provides an in-memory perforce.Client for tests.
package testing

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"

	"chainguard.dev/buildvcs/perforce"
	"chainguard.dev/buildvcs/vcs"
)

// Call records one operation run against the fake.
type Call struct {
	Op    string
	Args  []string
	Input perforce.Record
	// Workspace is the client selected when the call was made.
	Workspace string
}

// String renders the call like a command line.
func (c Call) String() string {
	return strings.TrimSpace(c.Op + " " + strings.Join(c.Args, " "))
}

// HandlerFunc overrides the built-in behavior of one operation.
type HandlerFunc func(args []string, input perforce.Record) ([]perforce.Record, error)

// Shelved is one file of a shelved change.
type Shelved struct {
	DepotFile string
	Action    vcs.FileAction
	// MovedFile is the depot file a move/add came from.
	MovedFile string
}

// Fake is an in-memory Perforce server holding workspaces, submitted
// changes per location, shelved changes and change descriptions. Its zero
// value is not usable; call New.
type Fake struct {
	// ConnectErr is returned by Connect when set.
	ConnectErr error
	// DisconnectWarnings are returned by a Disconnect of an open session.
	DisconnectWarnings []string

	connected bool
	creds     perforce.Credentials
	workspace string
	calls     []Call
	handlers  map[string]HandlerFunc

	clients      map[string]perforce.Record
	submitted    map[string][]int
	files        map[string]int
	shelves      map[string][]Shelved
	committed    map[string]bool
	descriptions map[string]string
	opened       []perforce.Record
	reconcile    map[string][]perforce.Record
	pending      []string
	nextChange   int
}

var _ perforce.Client = (*Fake)(nil)

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		handlers:     map[string]HandlerFunc{},
		clients:      map[string]perforce.Record{},
		submitted:    map[string][]int{},
		files:        map[string]int{},
		shelves:      map[string][]Shelved{},
		committed:    map[string]bool{},
		descriptions: map[string]string{},
		reconcile:    map[string][]perforce.Record{},
		nextChange:   100000,
	}
}

// Handle overrides op with fn.
func (f *Fake) Handle(op string, fn HandlerFunc) *Fake {
	f.handlers[op] = fn
	return f
}

// Fail makes every call of op return err.
func (f *Fake) Fail(op string, err error) *Fake {
	return f.Handle(op, func([]string, perforce.Record) ([]perforce.Record, error) {
		return nil, err
	})
}

// AddClient registers an existing workspace.
func (f *Fake) AddClient(name, root string, view ...string) *Fake {
	r := perforce.Record{"Client": name, "Root": root}
	r.SetList("View", view)
	f.clients[name] = r
	return f
}

// Client returns the stored workspace record.
func (f *Fake) Client(name string) (perforce.Record, bool) {
	r, ok := f.clients[name]
	return r, ok
}

// AddSubmitted records submitted changes under a depot path, with the
// number of files a sync of that path downloads.
func (f *Fake) AddSubmitted(depotPath string, files int, changes ...int) *Fake {
	f.submitted[depotPath] = append(f.submitted[depotPath], changes...)
	slices.Sort(f.submitted[depotPath])
	f.files[depotPath] = files
	return f
}

// AddShelve records a shelved change.
func (f *Fake) AddShelve(cl string, files ...Shelved) *Fake {
	f.shelves[cl] = files
	return f
}

// Commit marks a shelved change as already committed.
func (f *Fake) Commit(cl string) *Fake {
	f.committed[cl] = true
	return f
}

// Describe sets the description of a change.
func (f *Fake) Describe(cl, desc string) *Fake {
	f.descriptions[cl] = desc
	return f
}

// AddReconcile sets what reconciling path reports.
func (f *Fake) AddReconcile(path string, records ...perforce.Record) *Fake {
	f.reconcile[path] = records
	return f
}

// AddPending puts depot files into the default change.
func (f *Fake) AddPending(depotFiles ...string) *Fake {
	f.pending = append(f.pending, depotFiles...)
	return f
}

// Calls returns every call made, optionally only those of the given ops.
func (f *Fake) Calls(ops ...string) []Call {
	if len(ops) == 0 {
		return slices.Clone(f.calls)
	}
	var out []Call
	for _, c := range f.calls {
		if slices.Contains(ops, c.Op) {
			out = append(out, c)
		}
	}
	return out
}

// Connect implements perforce.Client.
func (f *Fake) Connect(_ context.Context, creds perforce.Credentials) error {
	f.calls = append(f.calls, Call{Op: "connect"})
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.creds = creds
	f.connected = true
	return nil
}

// Disconnect implements perforce.Client.
func (f *Fake) Disconnect(context.Context) ([]string, error) {
	f.calls = append(f.calls, Call{Op: "disconnect"})
	if !f.connected {
		return []string{"Not connected."}, nil
	}
	f.connected = false
	return f.DisconnectWarnings, nil
}

// Connected implements perforce.Client.
func (f *Fake) Connected() bool {
	return f.connected
}

// SetClient implements perforce.Client.
func (f *Fake) SetClient(name string) {
	f.workspace = name
}

// Run implements perforce.Client.
func (f *Fake) Run(_ context.Context, op string, args ...string) ([]perforce.Record, error) {
	return f.dispatch(op, args, nil)
}

// RunInput implements perforce.Client.
func (f *Fake) RunInput(_ context.Context, op string, input perforce.Record, args ...string) ([]perforce.Record, error) {
	return f.dispatch(op, args, input)
}

func (f *Fake) dispatch(op string, args []string, input perforce.Record) ([]perforce.Record, error) {
	f.calls = append(f.calls, Call{Op: op, Args: slices.Clone(args), Input: clone(input), Workspace: f.workspace})
	if h, ok := f.handlers[op]; ok {
		return h(args, input)
	}
	if !f.connected {
		return nil, &vcs.BackendError{Op: op, Message: "Connect to server failed; check $P4PORT."}
	}

	switch op {
	case "clients":
		return f.runClients(args)
	case "client":
		return f.runClient(args, input)
	case "changes":
		return f.runChanges(args)
	case "sync":
		return f.runSync(args)
	case "unshelve":
		return f.runUnshelve(args)
	case "where":
		return f.runWhere(args)
	case "opened":
		return f.runOpened()
	case "revert":
		return f.runRevert()
	case "describe":
		return f.runDescribe(args)
	case "reconcile":
		return f.runReconcile(args)
	case "change":
		return []perforce.Record{f.defaultChange()}, nil
	case "submit":
		return f.runSubmit(input)
	}
	return nil, nil
}

func (f *Fake) runClients(args []string) ([]perforce.Record, error) {
	name := last(args)
	if _, ok := f.clients[name]; ok {
		return []perforce.Record{{"client": name}}, nil
	}
	return nil, nil
}

func (f *Fake) runClient(args []string, input perforce.Record) ([]perforce.Record, error) {
	switch {
	case slices.Contains(args, "-i"):
		f.clients[input["Client"]] = clone(input)
		return []perforce.Record{{"result": fmt.Sprintf("Client %s saved.", input["Client"])}}, nil
	case slices.Contains(args, "-d"):
		name := last(args)
		if _, ok := f.clients[name]; !ok {
			return nil, &vcs.BackendError{Op: "client", Message: fmt.Sprintf("Client '%s' doesn't exist.", name)}
		}
		delete(f.clients, name)
		return nil, nil
	default:
		name := last(args)
		if r, ok := f.clients[name]; ok {
			return []perforce.Record{clone(r)}, nil
		}
		return []perforce.Record{{"Client": name, "Root": "/tmp/" + name, "Options": "noallwrite noclobber"}}, nil
	}
}

func (f *Fake) runChanges(args []string) ([]perforce.Record, error) {
	limit := 0
	for i, a := range args {
		switch {
		case a == "-m" && i+1 < len(args):
			limit, _ = strconv.Atoi(args[i+1])
		case strings.HasPrefix(a, "-m") && len(a) > 2:
			limit, _ = strconv.Atoi(a[2:])
		}
	}
	target := last(args)
	depot, rng, _ := strings.Cut(target, "@")
	from := 0
	if rng != "" {
		start, _, _ := strings.Cut(rng, ",")
		from, _ = strconv.Atoi(start)
	}

	changes := f.submitted[depot]
	var out []perforce.Record
	for i := len(changes) - 1; i >= 0; i-- {
		if changes[i] < from {
			break
		}
		out = append(out, perforce.Record{"change": strconv.Itoa(changes[i]), "status": "submitted"})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *Fake) runSync(args []string) ([]perforce.Record, error) {
	target := last(args)
	depot, _, _ := strings.Cut(target, "@")
	if _, ok := f.toLocal(depot); !ok {
		return nil, &vcs.BackendError{Op: "sync", Message: target + " - file(s) not in client view."}
	}
	return []perforce.Record{{
		"depotFile":      depot,
		"totalFileCount": strconv.Itoa(f.files[depot]),
	}}, nil
}

func (f *Fake) runUnshelve(args []string) ([]perforce.Record, error) {
	cl := ""
	for i, a := range args {
		if a == "-s" && i+1 < len(args) {
			cl = args[i+1]
		}
	}
	if f.committed[cl] {
		return nil, &vcs.BackendError{Op: "unshelve", Message: fmt.Sprintf("Change %s is already committed.", cl)}
	}
	files, ok := f.shelves[cl]
	if !ok {
		return nil, &vcs.BackendError{Op: "unshelve", Message: fmt.Sprintf("Change %s - no such changelist.", cl)}
	}
	var out []perforce.Record
	for _, s := range files {
		r := perforce.Record{"depotFile": s.DepotFile, "action": string(s.Action)}
		out = append(out, r)

		clientFile, _ := f.toClient(s.DepotFile)
		o := perforce.Record{
			"depotFile":  s.DepotFile,
			"clientFile": clientFile,
			"client":     f.workspace,
			"action":     string(s.Action),
		}
		if s.MovedFile != "" {
			o["movedFile"] = s.MovedFile
		}
		f.opened = append(f.opened, o)
	}
	return out, nil
}

func (f *Fake) runWhere(args []string) ([]perforce.Record, error) {
	depot := last(args)
	local, ok := f.toLocal(depot)
	if !ok {
		return nil, &vcs.BackendError{Op: "where", Message: depot + " - file(s) not in client view."}
	}
	clientFile, _ := f.toClient(depot)
	return []perforce.Record{{"depotFile": depot, "clientFile": clientFile, "path": local}}, nil
}

func (f *Fake) runOpened() ([]perforce.Record, error) {
	if len(f.opened) == 0 {
		return nil, &vcs.BackendError{Op: "opened", Warnings: []string{"file(s) not opened on this client."}}
	}
	out := make([]perforce.Record, 0, len(f.opened))
	for _, o := range f.opened {
		out = append(out, clone(o))
	}
	return out, nil
}

func (f *Fake) runRevert() ([]perforce.Record, error) {
	if len(f.opened) == 0 {
		return nil, &vcs.BackendError{Op: "revert", Warnings: []string{"//... - file(s) not opened on this client."}}
	}
	out := make([]perforce.Record, 0, len(f.opened))
	for _, o := range f.opened {
		out = append(out, perforce.Record{"depotFile": o["depotFile"], "action": "reverted"})
	}
	f.opened = nil
	return out, nil
}

func (f *Fake) runDescribe(args []string) ([]perforce.Record, error) {
	cl := last(args)
	return []perforce.Record{{"change": cl, "desc": f.descriptions[cl]}}, nil
}

func (f *Fake) runReconcile(args []string) ([]perforce.Record, error) {
	p := last(args)
	records, ok := f.reconcile[p]
	if !ok || len(records) == 0 {
		return nil, &vcs.BackendError{Op: "reconcile", Warnings: []string{p + " - no file(s) to reconcile."}}
	}
	for _, r := range records {
		f.pending = append(f.pending, r["depotFile"])
	}
	out := make([]perforce.Record, 0, len(records))
	for _, r := range records {
		out = append(out, clone(r))
	}
	return out, nil
}

func (f *Fake) defaultChange() perforce.Record {
	r := perforce.Record{
		"Change":      "new",
		"Client":      f.workspace,
		"Status":      "new",
		"Description": "<enter description here>",
	}
	r.SetList("Files", f.pending)
	return r
}

func (f *Fake) runSubmit(input perforce.Record) ([]perforce.Record, error) {
	if len(input.List("Files")) == 0 {
		return nil, &vcs.BackendError{Op: "submit", Message: "No files to submit."}
	}
	f.nextChange++
	f.pending = nil
	cl := strconv.Itoa(f.nextChange)
	return []perforce.Record{{"change": cl}, {"submittedChange": cl}}, nil
}

// mapping returns the depot prefix, client prefix and local prefix of the
// last view line of the current workspace that covers depot.
func (f *Fake) mapping(depot string) (string, string, bool) {
	ws, ok := f.clients[f.workspace]
	if !ok {
		return "", "", false
	}
	var depotPrefix, clientPrefix string
	found := false
	for _, line := range ws.List("View") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		dp := strings.TrimSuffix(fields[0], "...")
		if strings.HasPrefix(depot, dp) || depot == fields[0] {
			depotPrefix, clientPrefix, found = dp, strings.TrimSuffix(fields[1], "..."), true
		}
	}
	return depotPrefix, clientPrefix, found
}

func (f *Fake) toClient(depot string) (string, bool) {
	dp, cp, ok := f.mapping(depot)
	if !ok {
		return "", false
	}
	return cp + strings.TrimPrefix(strings.TrimSuffix(depot, "..."), dp), true
}

func (f *Fake) toLocal(depot string) (string, bool) {
	clientFile, ok := f.toClient(depot)
	if !ok {
		return "", false
	}
	rel := strings.TrimPrefix(clientFile, "//"+f.workspace+"/")
	return path.Join(f.clients[f.workspace]["Root"], rel), true
}

func last(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[len(args)-1]
}

func clone(r perforce.Record) perforce.Record {
	if r == nil {
		return nil
	}
	out := make(perforce.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
