package memory

import (
	"fmt"
	"os"
	"time"

	"collecte-backend/internal/domain"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Seed lists the directory entries loaded into a fresh memory store.
type Seed struct {
	Agencies []struct {
		ID   int64  `yaml:"id"`
		Code string `yaml:"code"`
		Name string `yaml:"name"`
	} `yaml:"agencies"`
	Collectors []struct {
		ID            int64  `yaml:"id"`
		AgencyID      int64  `yaml:"agency_id"`
		Name          string `yaml:"name"`
		Email         string `yaml:"email"`
		PushToken     string `yaml:"push_token"`
		HiredOn       string `yaml:"hired_on"`
		MaxWithdrawal string `yaml:"max_withdrawal"`
	} `yaml:"collectors"`
	Clients []struct {
		ID          int64  `yaml:"id"`
		CollectorID int64  `yaml:"collector_id"`
		Name        string `yaml:"name"`
		Phone       string `yaml:"phone"`
	} `yaml:"clients"`
}

// LoadSeedFile reads a YAML seed file into the store.
func (s *Store) LoadSeedFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}
	return s.ApplySeed(&seed)
}

func (s *Store) ApplySeed(seed *Seed) error {
	for _, a := range seed.Agencies {
		s.AddAgency(domain.Agency{ID: a.ID, Code: a.Code, Name: a.Name})
	}

	collectorAgency := make(map[int64]int64)
	for _, c := range seed.Collectors {
		hiredOn, err := time.Parse("2006-01-02", c.HiredOn)
		if err != nil {
			return fmt.Errorf("collector %d: invalid hired_on: %w", c.ID, err)
		}
		ceiling := decimal.Zero
		if c.MaxWithdrawal != "" {
			ceiling, err = decimal.NewFromString(c.MaxWithdrawal)
			if err != nil {
				return fmt.Errorf("collector %d: invalid max_withdrawal: %w", c.ID, err)
			}
		}
		added := s.AddCollector(domain.Collector{
			ID:            c.ID,
			AgencyID:      c.AgencyID,
			Name:          c.Name,
			Email:         c.Email,
			PushToken:     c.PushToken,
			HiredOn:       hiredOn,
			MaxWithdrawal: ceiling,
			Active:        true,
		})
		collectorAgency[added.ID] = added.AgencyID
	}

	for _, c := range seed.Clients {
		agencyID, ok := collectorAgency[c.CollectorID]
		if !ok {
			return fmt.Errorf("client %d references unknown collector %d", c.ID, c.CollectorID)
		}
		s.AddClient(domain.Client{
			ID:          c.ID,
			CollectorID: c.CollectorID,
			AgencyID:    agencyID,
			Name:        c.Name,
			Phone:       c.Phone,
			Active:      true,
		})
	}
	return nil
}
