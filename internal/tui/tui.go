// Package tui is the focus-mode review surface: a terminal list of pending
// tasks with single-key lifecycle actions. It doubles as the standalone
// capture confirmation surface by reading the stashed draft on startup.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"

	goerrors "github.com/go-errors/errors"
	"github.com/jesseduffield/gocui"
	"go.uber.org/zap"

	"github.com/matthock/snipsync/internal/capture"
	"github.com/matthock/snipsync/internal/lifecycle"
	"github.com/matthock/snipsync/pkg/types"
)

const (
	viewHeader  = "header"
	viewTasks   = "tasks"
	viewDraft   = "draft"
	viewStandby = "standby"
	viewFooter  = "footer"
)

// UI is the focus-mode surface state.
type UI struct {
	service *lifecycle.Service
	flow    *capture.Flow
	logger  *zap.Logger
	gui     *gocui.Gui

	tasks        []types.Task
	filter       types.Filter
	selected     int
	draft        *types.Task
	status       string
	waking       bool
	wakeAttempts int
	wakeCancel   context.CancelFunc
	dismissWake  sync.Once
}

// Run starts the focus surface and blocks until quit.
func Run(service *lifecycle.Service, flow *capture.Flow, logger *zap.Logger) error {
	gui, err := gocui.NewGui(gocui.NewGuiOpts{OutputMode: gocui.OutputNormal})
	if err != nil {
		return err
	}
	defer gui.Close()

	ui := &UI{
		service: service,
		flow:    flow,
		logger:  logger,
		gui:     gui,
		filter:  types.FilterPending,
		status:  "ready",
	}

	gui.SetManagerFunc(ui.layout)
	if err := ui.bindKeys(gui); err != nil {
		return err
	}

	if draft, err := flow.PendingDraft(context.Background()); err == nil && draft != nil {
		ui.draft = draft
	}

	ui.startWake()

	if err := gui.MainLoop(); err != nil && err != gocui.ErrQuit {
		return err
	}
	if ui.wakeCancel != nil {
		ui.wakeCancel()
	}
	return nil
}

// startWake runs the backend wake protocol behind a standby banner. The
// banner dismissal runs exactly once even if a second wake signal arrives
// after the first already resolved.
func (u *UI) startWake() {
	u.waking = true
	ctx, cancel := context.WithCancel(context.Background())
	u.wakeCancel = cancel

	go func() {
		err := u.service.WakeBackend(ctx, func(attempt int) {
			u.gui.Update(func(g *gocui.Gui) error {
				u.wakeAttempts = attempt
				return nil
			})
		})
		if err != nil {
			return
		}
		u.dismissWake.Do(func() {
			u.gui.Update(func(g *gocui.Gui) error {
				u.waking = false
				u.status = "backend awake"
				return u.reloadTasks()
			})
		})
	}()
}

func (u *UI) bindKeys(gui *gocui.Gui) error {
	if err := gui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, u.quit); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'q', gocui.ModNone, u.quit); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'r', gocui.ModNone, u.refresh); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewTasks, 'j', gocui.ModNone, u.moveDown); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewTasks, gocui.KeyArrowDown, gocui.ModNone, u.moveDown); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewTasks, 'k', gocui.ModNone, u.moveUp); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewTasks, gocui.KeyArrowUp, gocui.ModNone, u.moveUp); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewTasks, 's', gocui.ModNone, u.sendSelected); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewTasks, 'd', gocui.ModNone, u.declineSelected); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewTasks, 'x', gocui.ModNone, u.deleteSelected); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewTasks, 'u', gocui.ModNone, u.restoreSelected); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewTasks, 'v', gocui.ModNone, u.toggleView); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewDraft, gocui.KeyEnter, gocui.ModNone, u.confirmDraft); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewDraft, gocui.KeyEsc, gocui.ModNone, u.discardDraft); err != nil {
		return err
	}
	return nil
}

func (u *UI) layout(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()

	headerView, err := gui.SetView(viewHeader, 0, 0, maxX-1, 2, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	headerView.Clear()
	fmt.Fprintln(headerView, " snipsync focus — s send · d decline · u restore · x delete · v view · r refresh · q quit")

	if u.waking {
		standbyView, err := gui.SetView(viewStandby, maxX/4, maxY/2-1, 3*maxX/4, maxY/2+1, 0)
		if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		standbyView.Title = "Waking task store"
		standbyView.Clear()
		fmt.Fprintf(standbyView, " probe attempt %d...\n", u.wakeAttempts)
		if _, err := gui.SetCurrentView(viewStandby); err != nil {
			return err
		}
		return nil
	}
	_ = gui.DeleteView(viewStandby)

	if u.draft != nil {
		draftView, err := gui.SetView(viewDraft, 2, maxY/2-3, maxX-3, maxY/2+2, 0)
		if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		draftView.Title = "Pending capture — Enter to add, Esc to discard"
		draftView.Clear()
		fmt.Fprintf(draftView, " %s\n", capture.DeriveTitle(u.draft.Description))
		fmt.Fprintf(draftView, " source: %s  priority: %s\n", u.draft.Source, u.draft.Priority)
		if _, err := gui.SetCurrentView(viewDraft); err != nil {
			return err
		}
		return nil
	}
	_ = gui.DeleteView(viewDraft)

	tasksView, err := gui.SetView(viewTasks, 0, 3, maxX-1, maxY-3, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	tasksView.Title = viewTitle(u.filter)
	tasksView.Clear()
	for i, task := range u.tasks {
		fmt.Fprintln(tasksView, formatTaskLine(task, i == u.selected))
	}

	footerView, err := gui.SetView(viewFooter, 0, maxY-2, maxX-1, maxY, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	footerView.Frame = false
	footerView.Clear()
	fmt.Fprintf(footerView, " %s", u.status)

	if _, err := gui.SetCurrentView(viewTasks); err != nil {
		return err
	}
	return nil
}

func (u *UI) reloadTasks() error {
	tasks, err := u.service.Tasks(context.Background(), u.filter)
	if err != nil {
		u.status = "load failed: " + err.Error()
		return nil
	}
	u.tasks = tasks
	if u.selected >= len(u.tasks) {
		u.selected = len(u.tasks) - 1
	}
	if u.selected < 0 {
		u.selected = 0
	}
	return nil
}

func (u *UI) quit(gui *gocui.Gui, v *gocui.View) error {
	return gocui.ErrQuit
}

func (u *UI) refresh(gui *gocui.Gui, v *gocui.View) error {
	added, err := u.service.SyncTasks(context.Background())
	if err != nil {
		u.status = "sync failed: " + err.Error()
		return nil
	}
	u.status = fmt.Sprintf("synced, %d new", added)
	return u.reloadTasks()
}

func (u *UI) moveDown(gui *gocui.Gui, v *gocui.View) error {
	if u.selected < len(u.tasks)-1 {
		u.selected++
	}
	return nil
}

func (u *UI) moveUp(gui *gocui.Gui, v *gocui.View) error {
	if u.selected > 0 {
		u.selected--
	}
	return nil
}

func (u *UI) selectedTask() *types.Task {
	if u.selected < 0 || u.selected >= len(u.tasks) {
		return nil
	}
	return &u.tasks[u.selected]
}

func (u *UI) sendSelected(gui *gocui.Gui, v *gocui.View) error {
	task := u.selectedTask()
	if task == nil {
		return nil
	}
	sent, err := u.service.SendToJira(context.Background(), task.ID, "")
	if err != nil {
		u.status = "send failed: " + err.Error()
		return nil
	}
	u.status = fmt.Sprintf("sent as %s", sent.JiraKey)
	return u.reloadTasks()
}

func (u *UI) declineSelected(gui *gocui.Gui, v *gocui.View) error {
	task := u.selectedTask()
	if task == nil {
		return nil
	}
	if _, err := u.service.Decline(context.Background(), task.ID); err != nil {
		u.status = "decline failed: " + err.Error()
		return nil
	}
	u.status = "declined"
	return u.reloadTasks()
}

func (u *UI) restoreSelected(gui *gocui.Gui, v *gocui.View) error {
	task := u.selectedTask()
	if task == nil {
		return nil
	}
	if _, err := u.service.Restore(context.Background(), task.ID); err != nil {
		u.status = "restore failed: " + err.Error()
		return nil
	}
	u.status = "restored to pending"
	return u.reloadTasks()
}

// toggleView flips the list between pending and declined, the latter being the
// only place a restore is offered.
func (u *UI) toggleView(gui *gocui.Gui, v *gocui.View) error {
	if u.filter == types.FilterDeclined {
		u.filter = types.FilterPending
	} else {
		u.filter = types.FilterDeclined
	}
	u.selected = 0
	return u.reloadTasks()
}

func (u *UI) deleteSelected(gui *gocui.Gui, v *gocui.View) error {
	task := u.selectedTask()
	if task == nil {
		return nil
	}
	if err := u.service.Delete(context.Background(), task.ID); err != nil {
		u.status = "delete failed: " + err.Error()
		return nil
	}
	u.status = "deleted"
	return u.reloadTasks()
}

func (u *UI) confirmDraft(gui *gocui.Gui, v *gocui.View) error {
	if u.draft == nil {
		return nil
	}
	_, err := u.flow.Confirm(context.Background(), *u.draft, capture.Confirmation{Via: capture.RouteFallback})
	if err != nil {
		u.status = "add failed: " + err.Error()
		return nil
	}
	u.draft = nil
	u.status = "task added"
	if _, err := u.service.SyncFromBackend(context.Background()); err != nil {
		u.logger.Warn("sync after confirm failed", zap.Error(err))
	}
	return u.reloadTasks()
}

func (u *UI) discardDraft(gui *gocui.Gui, v *gocui.View) error {
	if err := u.flow.DiscardDraft(context.Background()); err != nil {
		u.status = "discard failed: " + err.Error()
		return nil
	}
	u.draft = nil
	u.status = "capture discarded"
	return nil
}

func viewTitle(f types.Filter) string {
	if f == types.FilterDeclined {
		return "Declined"
	}
	return "Pending"
}

func formatTaskLine(task types.Task, selected bool) string {
	marker := "  "
	if selected {
		marker = "> "
	}
	line := marker + task.Title
	var tags []string
	if task.Priority != "" && task.Priority != types.PriorityMedium {
		tags = append(tags, string(task.Priority))
	}
	if task.Source != "" && task.Source != types.SourceWeb {
		tags = append(tags, string(task.Source))
	}
	if task.Deadline != "" {
		tags = append(tags, "due "+task.Deadline)
	}
	if task.OutOfSync {
		tags = append(tags, "out of sync")
	}
	if len(tags) > 0 {
		line += "  [" + strings.Join(tags, " · ") + "]"
	}
	return line
}
