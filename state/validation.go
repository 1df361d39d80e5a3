package state

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"github.com/go-playground/validator/v10"
)

var namePattern, _ = regexp.Compile("^[0-9A-Za-z._-]+$")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags on configuration and decoded messages.
func Validate(v any) error {
	return validate.Struct(v)
}

func PathValidator(s string) error {
	_, err := os.Stat(filepath.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(\"%s\") = %d > 100 is too long", s, len(s))
	}
	return nil
}

func BindValidator(s string) error {
	_, err := netip.ParseAddrPort(s)
	return err
}

func StationConfigValidator(cfg *StationCfg) error {
	if err := NameValidator(cfg.Name); err != nil {
		return err
	}
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if !cfg.ClientBind.IsValid() {
		return fmt.Errorf("client_bind is invalid")
	}
	if !cfg.StationBind.IsValid() {
		return fmt.Errorf("station_bind is invalid")
	}
	if cfg.AdvertiseAddr().Addr().IsUnspecified() {
		return fmt.Errorf("station_bind %s is unspecified, set advertise to an address neighbours can reach", cfg.StationBind)
	}
	if err := PathValidator(cfg.Timetable); err != nil {
		return fmt.Errorf("timetable: %w", err)
	}
	self := cfg.AdvertiseAddr()
	seen := make([]netip.AddrPort, 0, len(cfg.Neighbours))
	for _, n := range cfg.Neighbours {
		n = NormalizeAddr(n)
		if !n.IsValid() {
			return fmt.Errorf("neighbour address is invalid")
		}
		if n == self {
			return fmt.Errorf("station %s lists itself (%s) as a neighbour", cfg.Name, n)
		}
		if slices.Contains(seen, n) {
			return fmt.Errorf("duplicate neighbour found: %s", n)
		}
		seen = append(seen, n)
	}
	return nil
}
