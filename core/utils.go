package core

import (
	"reflect"

	"github.com/encodeous/station/state"
)

func Get[T state.StationModule](s *state.State) T {
	t := reflect.TypeFor[T]()
	return s.Modules[t.String()].(T)
}
