package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/vidown/internal/model"
)

const (
	statePending = "pending"
	stateActive  = "active"
	statePaused  = "paused"
	stateSuccess = "success"
	stateError   = "error"
	stateWarning = "warning"
)

type jobOutput struct {
	ID          string
	Title       string
	Status      string
	Percent     int
	Speed       string
	ETA         string
	Actions     []model.Action
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Index       int
}

type ErrorReport struct {
	JobID string
	Title string
	Time  time.Time
}

// Manager is the terminal notification sink: one line per job plus a
// progress line for running ones, redrawn in place on a ticker.
type Manager struct {
	outputs     map[string]*jobOutput
	mutex       sync.RWMutex
	out         io.Writer
	numLines    int
	errors      []ErrorReport
	doneCh      chan struct{}
	displayTick time.Duration
	jobCount    int
	displayWg   sync.WaitGroup
	stopOnce    sync.Once
	now         func() time.Time
}

// NewManager writes to out, or stdout when out is nil.
func NewManager(out io.Writer) *Manager {
	if out == nil {
		out = os.Stdout
	}
	return &Manager{
		outputs:     make(map[string]*jobOutput),
		out:         out,
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
		now:         time.Now,
	}
}

// entry returns the output for id, registering it on first sight. Callers
// hold the write lock.
func (m *Manager) entry(id, title string) *jobOutput {
	if info, exists := m.outputs[id]; exists {
		if title != "" {
			info.Title = title
		}
		return info
	}
	m.jobCount++
	now := m.now()
	info := &jobOutput{
		ID:          id,
		Title:       title,
		Status:      statePending,
		StartTime:   now,
		LastUpdated: now,
		Index:       m.jobCount,
	}
	m.outputs[id] = info
	return info
}

// Track registers a job before its first notice so it shows as waiting.
func (m *Manager) Track(id, title string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.entry(id, title)
}

func (m *Manager) ShowProgress(n model.Notice) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info := m.entry(n.JobID, n.Title)
	if info.Complete {
		return
	}
	info.Status = stateActive
	if n.Paused {
		info.Status = statePaused
	}
	info.Percent = n.Percent
	info.Speed = n.Speed
	info.ETA = n.ETA
	info.Actions = n.Actions()
	info.LastUpdated = m.now()
}

func (m *Manager) ShowTerminal(id, title string, success bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info := m.entry(id, title)
	info.Complete = true
	info.Actions = nil
	info.LastUpdated = m.now()
	if success {
		info.Status = stateSuccess
		info.Percent = 100
		return
	}
	info.Status = stateError
	m.errors = append(m.errors, ErrorReport{JobID: id, Title: info.Title, Time: info.LastUpdated})
}

// Sync folds registry state the worker does not notify about (queued,
// paused, cancelled and removed jobs) into the display.
func (m *Manager) Sync(jobs []model.Job) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	seen := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		seen[job.ID] = true
		info := m.entry(job.ID, job.Title)
		if info.Complete {
			continue
		}
		switch job.Status {
		case model.StatusPaused:
			if info.Status != statePaused {
				info.Status = statePaused
				info.Actions = model.Notice{Paused: true}.Actions()
				info.LastUpdated = m.now()
			}
		case model.StatusPending:
			if info.Status == statePaused {
				info.Status = statePending
				info.Actions = nil
			}
		case model.StatusCancelled:
			info.Complete = true
			info.Status = stateWarning
			info.Actions = nil
			info.LastUpdated = m.now()
		}
	}
	for id, info := range m.outputs {
		if !seen[id] && !info.Complete {
			delete(m.outputs, id)
		}
	}
}

func (m *Manager) GetStatusIndicator(status string) string {
	switch status {
	case stateSuccess:
		return successStyle.Render(StyleSymbols["pass"])
	case stateError:
		return errorStyle.Render(StyleSymbols["fail"])
	case stateWarning:
		return warningStyle.Render(StyleSymbols["warning"])
	case statePaused:
		return warningStyle.Render(StyleSymbols["paused"])
	case statePending:
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func (m *Manager) sortJobs() (active, pending, completed []*jobOutput) {
	var all []*jobOutput
	for _, info := range m.outputs {
		all = append(all, info)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Index < all[j].Index
	})
	for _, f := range all {
		switch {
		case f.Complete:
			completed = append(completed, f)
		case f.Status == statePending:
			pending = append(pending, f)
		default:
			active = append(active, f)
		}
	}
	return active, pending, completed
}

func (m *Manager) message(info *jobOutput) string {
	switch info.Status {
	case stateSuccess:
		return successStyle.Render("Downloaded " + info.Title)
	case stateError:
		return errorStyle.Render("Failed " + info.Title)
	case stateWarning:
		return warningStyle.Render("Cancelled " + info.Title)
	case statePaused:
		return warningStyle.Render("Paused " + info.Title)
	default:
		return pendingStyle.Render(info.Title)
	}
}

func (m *Manager) progressLine(info *jobOutput) string {
	line := PrintProgressBar(info.Percent, 30)
	if info.Speed != "" {
		line += debugStyle.Render(info.Speed) + " "
	}
	if info.ETA != "" {
		line += StyleSymbols["bullet"] + " " + debugStyle.Render("ETA "+info.ETA) + " "
	}
	if len(info.Actions) > 0 {
		names := make([]string, len(info.Actions))
		for i, a := range info.Actions {
			names[i] = "[" + string(a) + "]"
		}
		line += streamStyle.Render(strings.Join(names, " "))
	}
	return line
}

// render lays out at most availableLines lines.
func (m *Manager) render(availableLines int) []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	indent := strings.Repeat(" ", basePadding)
	streamIndent := strings.Repeat(" ", basePadding+4)
	now := m.now()

	active, pending, completed := m.sortJobs()
	needed := 2*len(active) + len(pending) + len(completed)
	if needed > availableLines {
		maxCompleted := max(availableLines-(needed-len(completed)), 0)
		if len(completed) > maxCompleted {
			completed = completed[len(completed)-maxCompleted:]
		}
	}

	var lines []string
	add := func(line string) bool {
		if len(lines) >= availableLines {
			return false
		}
		lines = append(lines, line)
		return true
	}
	for _, info := range active {
		elapsed := now.Sub(info.StartTime).Round(time.Second).String()
		if !add(fmt.Sprintf("%s%s %s %s", indent, m.GetStatusIndicator(info.Status), debugStyle.Render(elapsed), m.message(info))) {
			return lines
		}
		if !add(streamIndent + m.progressLine(info)) {
			return lines
		}
	}
	for _, info := range pending {
		if !add(fmt.Sprintf("%s%s %s", indent, m.GetStatusIndicator(info.Status), pendingStyle.Render("Waiting... "+truncate(info.Title, basePadding+14)))) {
			return lines
		}
	}
	if len(completed) > 10 {
		if !add(infoStyle.Render(fmt.Sprintf("%s%d jobs finished with varying hidden status ...", indent, len(completed)-8))) {
			return lines
		}
		completed = completed[len(completed)-8:]
	}
	for _, info := range completed {
		total := info.LastUpdated.Sub(info.StartTime).Round(time.Second).String()
		if !add(fmt.Sprintf("%s%s %s %s", indent, m.GetStatusIndicator(info.Status), debugStyle.Render(total), m.message(info))) {
			return lines
		}
	}
	return lines
}

func (m *Manager) updateDisplay() {
	lines := m.render(getTerminalHeight() - 3)
	var b strings.Builder
	if m.numLines > 0 {
		fmt.Fprintf(&b, "\033[%dA\033[J", m.numLines)
	}
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	io.WriteString(m.out, b.String())
	m.numLines = len(lines)
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.updateDisplay()
				m.ShowSummary()
				return
			}
		}
	}()
}

// StopDisplay draws the final frame and the summary. Safe to call twice.
func (m *Manager) StopDisplay() {
	m.stopOnce.Do(func() {
		close(m.doneCh)
		m.displayWg.Wait()
	})
}

// Counts returns how many tracked jobs succeeded and failed.
func (m *Manager) Counts() (success, failed, total int) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, info := range m.outputs {
		switch info.Status {
		case stateSuccess:
			success++
		case stateError:
			failed++
		}
	}
	return success, failed, len(m.outputs)
}

func (m *Manager) ShowSummary() {
	success, failures, total := m.Counts()
	indent := strings.Repeat(" ", basePadding)
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(indent + success2Style.Render(fmt.Sprintf("Completed %d of %d", success, total)) + "\n")
	if failures > 0 {
		b.WriteString(indent + errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, total)) + "\n")
	}
	m.mutex.RLock()
	if len(m.errors) > 0 {
		b.WriteString("\n" + indent + errorStyle.Bold(true).Render("Errors:") + "\n")
		for i, report := range m.errors {
			fmt.Fprintf(&b, "%s%s %s %s\n",
				strings.Repeat(" ", basePadding+2),
				errorStyle.Render(fmt.Sprintf("%d.", i+1)),
				debugStyle.Render(fmt.Sprintf("[%s]", report.Time.Format("15:04:05"))),
				errorStyle.Render(fmt.Sprintf("%s (%s)", report.Title, shortID(report.JobID))))
		}
	}
	m.mutex.RUnlock()
	b.WriteString("\n")
	io.WriteString(m.out, b.String())
}

func shortID(id string) string {
	return model.Job{ID: id}.ShortID()
}
