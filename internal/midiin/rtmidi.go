package midiin

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

type rtmidiInputs struct {
	drv *rtmididrv.Driver
}

func openRtmidi() (*rtmidiInputs, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	return &rtmidiInputs{drv: drv}, nil
}

func (r *rtmidiInputs) Names() ([]string, error) {
	ins, err := r.drv.Ins()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, in.String())
	}
	return names, nil
}

func (r *rtmidiInputs) Listen(name string, recv func(midi.Message), onErr func(error)) (func(), error) {
	ins, err := r.drv.Ins()
	if err != nil {
		return nil, err
	}
	var found drivers.In
	for _, in := range ins {
		if in.String() == name {
			found = in
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("input %q not found", name)
	}
	if err := found.Open(); err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}
	stop, err := midi.ListenTo(found, func(msg midi.Message, _ int32) {
		recv(msg)
	}, midi.HandleError(onErr))
	if err != nil {
		_ = found.Close()
		return nil, err
	}
	return func() {
		stop()
		_ = found.Close()
	}, nil
}

func (r *rtmidiInputs) Close() error {
	return r.drv.Close()
}
