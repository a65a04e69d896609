//go:build gui

package gui

import (
	"context"
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"moodmic/presenter"
)

// Controller is the part of the presenter the window drives.
type Controller interface {
	StartListening()
	StopListening()
	SetText(s string)
	Analyze()
	AnswerPermission(granted bool)
	Dismiss()
	Snapshot() presenter.State
	Subscribe() (<-chan presenter.State, func())
}

type Window struct {
	ctrl    Controller
	copy    func(string) error
	fyneApp fyne.App
	window  fyne.Window

	glyph    *canvas.Text
	mood     *widget.Label
	status   *widget.Label
	notice   *widget.Label
	input    *widget.Entry
	listen   *widget.Button
	analyze  *widget.Button
	progress *widget.ProgressBarInfinite

	// UI goroutine only
	state     presenter.State
	updating  bool
	prompting bool
}

func New(ctrl Controller, copyFn func(string) error) *Window {
	return &Window{ctrl: ctrl, copy: copyFn}
}

// Run builds the window and blocks in the fyne event loop until Quit.
func (w *Window) Run(ctx context.Context, modeLine string) error {
	w.fyneApp = app.NewWithID("io.moodmic.gui")
	w.fyneApp.Settings().SetTheme(&moodTheme{})

	if desk, ok := w.fyneApp.(desktop.App); ok {
		menu := fyne.NewMenu("moodmic",
			fyne.NewMenuItem("Listen", w.toggleListening),
			fyne.NewMenuItem("Quit", w.fyneApp.Quit),
		)
		desk.SetSystemTrayMenu(menu)
		desk.SetSystemTrayIcon(theme.MediaRecordIcon())
	}

	w.window = w.fyneApp.NewWindow("moodmic")
	w.window.SetContent(w.build(modeLine))
	w.window.Resize(fyne.NewSize(420, 460))
	w.window.SetMaster()

	ch, cancel := w.ctrl.Subscribe()
	defer cancel()
	go func() {
		for st := range ch {
			fyne.Do(func() { w.render(st) })
		}
	}()

	w.render(w.ctrl.Snapshot())
	w.window.ShowAndRun()
	return ctx.Err()
}

func (w *Window) Quit() {
	if w.fyneApp != nil {
		fyne.Do(w.fyneApp.Quit)
	}
}

func (w *Window) build(modeLine string) fyne.CanvasObject {
	w.glyph = canvas.NewText("", moodColor(""))
	w.glyph.TextSize = 96
	w.glyph.Alignment = fyne.TextAlignCenter

	w.mood = widget.NewLabel("")
	w.mood.Alignment = fyne.TextAlignCenter
	w.status = widget.NewLabel("")
	w.notice = widget.NewLabel("")
	w.notice.Importance = widget.WarningImportance
	w.notice.Hide()

	w.input = widget.NewMultiLineEntry()
	w.input.SetPlaceHolder("type or speak something")
	w.input.Wrapping = fyne.TextWrapWord
	w.input.OnChanged = func(s string) {
		if !w.updating {
			w.ctrl.SetText(s)
		}
	}

	w.listen = widget.NewButtonWithIcon("Listen", theme.MediaRecordIcon(), w.toggleListening)
	w.analyze = widget.NewButtonWithIcon("Analyze", theme.ConfirmIcon(), w.ctrl.Analyze)
	w.analyze.Importance = widget.HighImportance
	copyBtn := widget.NewButtonWithIcon("Copy", theme.ContentCopyIcon(), w.copyResult)

	w.progress = widget.NewProgressBarInfinite()
	w.progress.Hide()

	mode := widget.NewLabel(modeLine)
	mode.TextStyle = fyne.TextStyle{Italic: true}

	return container.NewBorder(
		container.NewVBox(w.glyph, w.mood, w.progress),
		container.NewVBox(w.notice, container.NewGridWithColumns(3, w.listen, w.analyze, copyBtn), w.status, mode),
		nil, nil,
		w.input,
	)
}

func (w *Window) toggleListening() {
	if w.state.Transcript.Capturing {
		w.ctrl.StopListening()
	} else {
		w.ctrl.StartListening()
	}
}

func (w *Window) copyResult() {
	st := w.state
	if st.Result == nil {
		return
	}
	text := fmt.Sprintf("%s %s %.2f", st.Emotion.Asset().Glyph, st.Result.Label, st.Result.Score)
	if err := w.copy(text); err != nil {
		dialog.ShowError(err, w.window)
	}
}

// render runs on the fyne goroutine.
func (w *Window) render(st presenter.State) {
	prevEmotion := w.state.Emotion
	w.state = st

	asset := st.Emotion.Asset()
	w.glyph.Text = asset.Glyph
	w.glyph.Color = moodColor(st.Emotion)
	w.glyph.Refresh()
	if st.Emotion != prevEmotion {
		w.fyneApp.Settings().SetTheme(&moodTheme{accent: moodColor(st.Emotion)})
	}

	if st.Result != nil {
		w.mood.SetText(fmt.Sprintf("%s  (%s %.2f)", st.Emotion, st.Result.Label, st.Result.Score))
	} else {
		w.mood.SetText("no mood yet")
	}

	if st.Input != w.input.Text {
		w.updating = true
		w.input.SetText(st.Input)
		w.updating = false
	}

	if st.Transcript.Capturing {
		w.listen.SetText("Stop")
		w.listen.SetIcon(theme.MediaStopIcon())
	} else {
		w.listen.SetText("Listen")
		w.listen.SetIcon(theme.MediaRecordIcon())
	}
	if st.Loading {
		w.progress.Show()
		w.progress.Start()
		w.analyze.Disable()
	} else {
		w.progress.Stop()
		w.progress.Hide()
		w.analyze.Enable()
	}
	w.status.SetText(st.Phase.String())

	switch {
	case st.Notice != "":
		w.notice.SetText(st.Notice)
		w.notice.Show()
	case st.Transcript.Err != "" && !st.Transcript.Capturing:
		w.notice.SetText(st.Transcript.Err)
		w.notice.Show()
	default:
		w.notice.Hide()
	}

	if st.PermissionPrompt && !w.prompting {
		w.prompting = true
		dialog.ShowConfirm("Microphone", "Allow moodmic to use the microphone?", func(ok bool) {
			w.prompting = false
			w.ctrl.AnswerPermission(ok)
		}, w.window)
	}
}
