package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Section names a top-level config section by its yaml key.
type Section string

const (
	SectionHTTP          Section = "http"
	SectionGRPC          Section = "grpc"
	SectionDatabase      Section = "database"
	SectionValKey        Section = "valkey"
	SectionInterpreter   Section = "interpreter"
	SectionFlowStore     Section = "flowStore"
	SectionDispatch      Section = "dispatch"
	SectionChannelSender Section = "channelSender"
	SectionHousekeeper   Section = "housekeeper"
	SectionSessionLock   Section = "sessionLock"
)

// Sections each command reads. The status server of the services checks the
// database, so they include it.
var (
	APIServerSections = []Section{
		SectionHTTP, SectionGRPC, SectionDatabase, SectionValKey, SectionInterpreter,
		SectionFlowStore, SectionDispatch, SectionChannelSender, SectionSessionLock,
	}
	HousekeeperSections = []Section{SectionDatabase, SectionValKey, SectionHousekeeper, SectionSessionLock}
	MigrateSections     = []Section{SectionDatabase}
)

var allSections = []Section{
	SectionHTTP, SectionGRPC, SectionDatabase, SectionValKey, SectionInterpreter,
	SectionFlowStore, SectionDispatch, SectionChannelSender, SectionHousekeeper, SectionSessionLock,
}

// Validate checks the given sections, or every section when none is given.
// BaseConfig is validated by commoncfg itself.
func Validate(cfg *Config, sections ...Section) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if len(sections) == 0 {
		sections = allSections
	}

	var errs []error
	for _, s := range sections {
		value, err := cfg.section(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := validate.Struct(value); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s config: %w", s, err))
		}
	}

	return errors.Join(errs...)
}

func (cfg *Config) section(s Section) (any, error) {
	switch s {
	case SectionHTTP:
		return cfg.HTTP, nil
	case SectionGRPC:
		return cfg.GRPC, nil
	case SectionDatabase:
		return cfg.Database, nil
	case SectionValKey:
		return cfg.ValKey, nil
	case SectionInterpreter:
		return cfg.Interpreter, nil
	case SectionFlowStore:
		return cfg.FlowStore, nil
	case SectionDispatch:
		return cfg.Dispatch, nil
	case SectionChannelSender:
		return cfg.ChannelSender, nil
	case SectionHousekeeper:
		return cfg.Housekeeper, nil
	case SectionSessionLock:
		return cfg.SessionLock, nil
	default:
		return nil, fmt.Errorf("unknown config section %q", s)
	}
}
