package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"fx-trader/internal/models"
)

type instrumentsFile struct {
	Instruments []models.Instrument `yaml:"instruments"`
}

// DefaultInstruments returns reference data for the major pairs on a
// standard 100k contract quoted in USD.
func DefaultInstruments() map[string]models.Instrument {
	std := func(symbol string, pip, pipValue float64) models.Instrument {
		return models.Instrument{
			Symbol:         symbol,
			PipSize:        pip,
			ContractSize:   100000,
			MinVolume:      0.01,
			MaxVolume:      100,
			VolumeStep:     0.01,
			PipValuePerLot: pipValue,
		}
	}
	list := []models.Instrument{
		std("EURUSD", 0.0001, 10),
		std("GBPUSD", 0.0001, 10),
		std("AUDUSD", 0.0001, 10),
		std("NZDUSD", 0.0001, 10),
		std("USDCHF", 0.0001, 10),
		std("USDCAD", 0.0001, 7.5),
		std("USDJPY", 0.01, 6.7),
		std("EURJPY", 0.01, 6.7),
		std("GBPJPY", 0.01, 6.7),
		std("EURGBP", 0.0001, 12.5),
	}
	out := make(map[string]models.Instrument, len(list))
	for _, i := range list {
		out[i.Symbol] = i
	}
	return out
}

// LoadInstruments reads instrument reference data from a yaml file and
// layers it over the built-in majors. An empty path returns the majors.
func LoadInstruments(path string) (map[string]models.Instrument, error) {
	out := DefaultInstruments()
	if path == "" {
		return out, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading instruments: %w", err)
	}

	var f instrumentsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing instruments: %w", err)
	}

	for _, inst := range f.Instruments {
		inst.Symbol = strings.ToUpper(inst.Symbol)
		if err := validateInstrument(inst); err != nil {
			return nil, err
		}
		out[inst.Symbol] = inst
	}
	return out, nil
}

func validateInstrument(i models.Instrument) error {
	switch {
	case i.Symbol == "":
		return fmt.Errorf("instrument without symbol")
	case i.PipSize <= 0:
		return fmt.Errorf("instrument %s: pip_size must be positive", i.Symbol)
	case i.ContractSize <= 0:
		return fmt.Errorf("instrument %s: contract_size must be positive", i.Symbol)
	case i.PipValuePerLot <= 0:
		return fmt.Errorf("instrument %s: pip_value_per_lot must be positive", i.Symbol)
	case i.VolumeStep <= 0:
		return fmt.Errorf("instrument %s: volume_step must be positive", i.Symbol)
	case i.MinVolume <= 0 || i.MinVolume > i.MaxVolume:
		return fmt.Errorf("instrument %s: min_volume must be positive and not exceed max_volume", i.Symbol)
	}
	return nil
}
