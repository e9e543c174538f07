package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tags first, then cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}

	if c.Symbology.SyntheticMin <= 0 || c.Symbology.SyntheticMin >= c.Symbology.SyntheticMax {
		return fmt.Errorf("symbology.synthetic_min must be > 0 and < synthetic_max, got [%d, %d)",
			c.Symbology.SyntheticMin, c.Symbology.SyntheticMax)
	}

	vendorIDs := make(map[int32]string, len(c.Vendors))
	vendorNames := make(map[string]struct{}, len(c.Vendors))
	for _, v := range c.Vendors {
		if v.ID == c.Consensus.VendorID {
			return fmt.Errorf("vendor %q uses the reserved consensus id %d", v.Name, v.ID)
		}
		if other, ok := vendorIDs[v.ID]; ok {
			return fmt.Errorf("vendor id %d used by both %q and %q", v.ID, other, v.Name)
		}
		if _, ok := vendorNames[v.Name]; ok {
			return fmt.Errorf("duplicate vendor name %q", v.Name)
		}
		if v.Name == c.Consensus.VendorName {
			return fmt.Errorf("vendor name %q is reserved for consensus", v.Name)
		}
		vendorIDs[v.ID] = v.Name
		vendorNames[v.Name] = struct{}{}
	}

	sourceNames := make(map[string]struct{}, len(c.Symbology.Sources))
	for _, s := range c.Symbology.Sources {
		if _, ok := sourceNames[s.Name]; ok {
			return fmt.Errorf("duplicate symbology source %q", s.Name)
		}
		sourceNames[s.Name] = struct{}{}
		if err := c.validateSource(s); err != nil {
			return err
		}
	}

	for _, v := range c.Vendors {
		if v.Source == "" {
			continue
		}
		if _, ok := sourceNames[v.Source]; !ok {
			return fmt.Errorf("vendor %q references unknown source %q", v.Name, v.Source)
		}
	}
	for _, name := range c.Pipeline.Sources {
		if _, ok := sourceNames[name]; !ok {
			return fmt.Errorf("pipeline.sources: unknown source %q", name)
		}
	}
	for _, name := range c.Pipeline.Vendors {
		if _, ok := vendorNames[name]; !ok {
			return fmt.Errorf("pipeline.vendors: unknown vendor %q", name)
		}
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}

func (c *Config) validateSource(s SourceConfig) error {
	prefix := "symbology.sources[" + s.Name + "]"
	if s.AllowList != "" {
		if _, ok := c.Symbology.AllowLists[s.AllowList]; !ok {
			return fmt.Errorf("%s: unknown allow_list %q", prefix, s.AllowList)
		}
	}
	switch s.Rule {
	case "exchange_qualified":
		if s.Column == "" {
			return fmt.Errorf("%s: column is required", prefix)
		}
		if s.SpecialExchange != "" && (s.SpecialColumn == "" || s.SpecialValue == "") {
			return fmt.Errorf("%s: special_column and special_value are required with special_exchange", prefix)
		}
	case "country_suffix":
		for _, sfx := range s.Suffixes {
			if sfx.Exchange == "" && sfx.ChildExchange == "" {
				return fmt.Errorf("%s: suffix %q needs an exchange or child_exchange", prefix, sfx.Suffix)
			}
		}
	}
	return nil
}
