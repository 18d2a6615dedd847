package app

import "github.com/rs/zerolog"

// Dispatcher fans session events out to their audiences through the
// registry. Delivery runs outside the session lock so a slow write never
// blocks the next trigger, and one dead connection never blocks the rest.
type Dispatcher struct {
	reg *Registry
	log zerolog.Logger
}

func NewDispatcher(reg *Registry, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{reg: reg, log: log}
}

func (d *Dispatcher) Dispatch(events []Event) {
	for _, ev := range events {
		d.dispatchOne(ev)
	}
}

func (d *Dispatcher) dispatchOne(ev Event) {
	conns := d.reg.Connections(ev.Audience)
	if len(conns) == 0 {
		if ev.Audience.scope == scopeHost {
			d.reg.bufferHost(ev.Envelope)
		}
		return
	}
	for _, c := range conns {
		if err := c.Send(ev.Envelope); err != nil {
			d.log.Warn().Err(err).Str("type", ev.Envelope.Type).Msg("dropping undeliverable message")
		}
	}
}
