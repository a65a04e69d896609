package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

var errPickerAborted = errors.New("device selection aborted")

type pickerAction int

const (
	pickNone pickerAction = iota
	pickUp
	pickDown
	pickConfirm
	pickAbort
)

// decodePickerKey maps one raw terminal read to a picker action.
func decodePickerKey(b []byte) pickerAction {
	switch {
	case len(b) == 1 && (b[0] == '\r' || b[0] == '\n'):
		return pickConfirm
	case len(b) == 1 && (b[0] == 3 || b[0] == 'q'):
		return pickAbort
	case len(b) == 1 && b[0] == 'k':
		return pickUp
	case len(b) == 1 && b[0] == 'j':
		return pickDown
	case len(b) == 3 && b[0] == 0x1b && b[1] == '[' && b[2] == 'A':
		return pickUp
	case len(b) == 3 && b[0] == 0x1b && b[1] == '[' && b[2] == 'B':
		return pickDown
	}
	return pickNone
}

func renderPicker(w io.Writer, devices []DeviceInfo, cursor int) {
	fmt.Fprint(w, "\r\x1b[J")
	fmt.Fprint(w, "Select microphone (↑/↓, Enter to confirm):\r\n\r\n")
	for i, d := range devices {
		warn := ""
		if IsBluetooth(d.Name) {
			warn = " \x1b[33m(headset, lower quality)\x1b[0m"
		}
		if i == cursor {
			fmt.Fprintf(w, "  \x1b[1;36m▶ %s%s\x1b[0m\r\n", d.Name, warn)
		} else {
			fmt.Fprintf(w, "    %s%s\r\n", d.Name, warn)
		}
	}
}

// SelectDevice runs an interactive picker on the terminal. A single device is
// returned without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	switch len(devices) {
	case 0:
		return nil, fmt.Errorf("no capture devices found")
	case 1:
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	cursor := 0
	renderPicker(os.Stdout, devices, cursor)

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		switch decodePickerKey(buf[:n]) {
		case pickConfirm:
			fmt.Print("\r\n")
			return &devices[cursor], nil
		case pickAbort:
			fmt.Print("\r\n")
			return nil, errPickerAborted
		case pickUp:
			cursor = max(cursor-1, 0)
		case pickDown:
			cursor = min(cursor+1, len(devices)-1)
		}
		fmt.Printf("\x1b[%dA", len(devices)+2)
		renderPicker(os.Stdout, devices, cursor)
	}
}
