// Package sink holds the destinations encoded units are written to.
package sink

import (
	"go.uber.org/multierr"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/media"
)

// Sink receives encoded units in output order.
type Sink interface {
	WriteUnit(u media.Unit) error
}

// Multi fans units out to every sink. A failing sink does not keep the unit
// from the others; all errors are returned combined.
type Multi []Sink

func (m Multi) WriteUnit(u media.Unit) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.WriteUnit(u))
	}
	return err
}
