// Package sv implements the IEC 61850-9-2LE Sampled Values publisher: the
// per-stream configuration, phasor state, frame encoder, and tick-loop
// publisher instance (components C/D/H).
package sv

import (
	"fmt"
	"net"
	"unicode/utf8"

	"github.com/virtualtestset/vpac/pkg/errs"
)

// SampleMod selects whether smp_rate counts samples per nominal cycle or
// per second.
type SampleMod int

const (
	SmpPerNominal SampleMod = iota
	SmpPerSec
)

// DataSource selects what drives PhasorState between ticks.
type DataSource int

const (
	DataSourceManual DataSource = iota
	DataSourceComtrade
	DataSourceSequence
)

// StreamConfig is immutable once constructed; updates replace the whole
// value.
type StreamConfig struct {
	StreamID    string           `yaml:"stream_id"`
	SvID        string           `yaml:"sv_id"`
	AppID       uint16           `yaml:"app_id"`
	MACDst      net.HardwareAddr `yaml:"mac_dst"`
	MACSrc      net.HardwareAddr `yaml:"mac_src"`
	VLANID      uint16           `yaml:"vlan_id"`
	VLANPrio    uint8            `yaml:"vlan_prio"`
	VLANDEI     bool             `yaml:"vlan_dei"`
	DatasetRef  string           `yaml:"dataset_ref"`
	ConfRev     uint32           `yaml:"conf_rev"`
	SmpRate     int              `yaml:"smp_rate"`
	SmpMod      SampleMod        `yaml:"smp_mod"`
	NASDU       int              `yaml:"n_asdu"`
	NChannels   int              `yaml:"n_channels"`
	NominalFreq float64          `yaml:"nominal_freq"`
	DataSource  DataSource
}

// Validate rejects a StreamConfig at the boundary with no state change,
// reporting the CONFIG_INVALID error kind.
func (c StreamConfig) Validate() error {
	const op = "sv.StreamConfig.Validate"

	if c.StreamID == "" {
		return errs.New(errs.KindConfigInvalid, op, fmt.Errorf("stream_id must not be empty"))
	}
	if len(c.SvID) > 34 || !utf8.ValidString(c.SvID) {
		return errs.New(errs.KindConfigInvalid, op, fmt.Errorf("svID must be valid UTF-8 of at most 34 bytes"))
	}
	if len(c.MACDst) != 6 {
		return errs.New(errs.KindConfigInvalid, op, fmt.Errorf("mac_dst must be 6 bytes"))
	}
	if len(c.MACSrc) != 0 && len(c.MACSrc) != 6 {
		return errs.New(errs.KindConfigInvalid, op, fmt.Errorf("mac_src must be empty or 6 bytes"))
	}
	if c.VLANID > 4095 {
		return errs.New(errs.KindConfigInvalid, op, fmt.Errorf("vlan_id %d exceeds 4095", c.VLANID))
	}
	if c.VLANPrio > 7 {
		return errs.New(errs.KindConfigInvalid, op, fmt.Errorf("vlan_prio %d exceeds 7", c.VLANPrio))
	}
	if len(c.DatasetRef) > 65 {
		return errs.New(errs.KindConfigInvalid, op, fmt.Errorf("dataset_ref exceeds 65 bytes"))
	}
	if c.SmpRate <= 0 {
		return errs.New(errs.KindConfigInvalid, op, fmt.Errorf("smp_rate must be positive"))
	}
	if c.NASDU < 1 || c.NASDU > 8 {
		return errs.New(errs.KindConfigInvalid, op, fmt.Errorf("n_asdu %d out of range [1,8]", c.NASDU))
	}
	if c.NChannels < 1 || c.NChannels > 24 {
		return errs.New(errs.KindConfigInvalid, op, fmt.Errorf("n_channels %d out of range [1,24]", c.NChannels))
	}
	if c.NominalFreq < 45 || c.NominalFreq > 65 {
		return errs.New(errs.KindConfigInvalid, op, fmt.Errorf("nominal_freq %v out of range [45,65]", c.NominalFreq))
	}
	return nil
}

// streamConfigYAML mirrors StreamConfig with MACDst/MACSrc as "XX:XX:XX:XX:XX:XX"
// strings — net.HardwareAddr has no MarshalText/UnmarshalText in the
// standard library, so yaml.v3's default []byte handling would otherwise
// round-trip it as base64, not the colon-separated notation operators
// actually write.
type streamConfigYAML struct {
	StreamID    string     `yaml:"stream_id"`
	SvID        string     `yaml:"sv_id"`
	AppID       uint16     `yaml:"app_id"`
	MACDst      string     `yaml:"mac_dst"`
	MACSrc      string     `yaml:"mac_src"`
	VLANID      uint16     `yaml:"vlan_id"`
	VLANPrio    uint8      `yaml:"vlan_prio"`
	VLANDEI     bool       `yaml:"vlan_dei"`
	DatasetRef  string     `yaml:"dataset_ref"`
	ConfRev     uint32     `yaml:"conf_rev"`
	SmpRate     int        `yaml:"smp_rate"`
	SmpMod      SampleMod  `yaml:"smp_mod"`
	NASDU       int        `yaml:"n_asdu"`
	NChannels   int        `yaml:"n_channels"`
	NominalFreq float64    `yaml:"nominal_freq"`
	DataSource  DataSource `yaml:"data_source"`
}

// UnmarshalYAML parses the colon-separated MAC notation into a
// net.HardwareAddr; mac_src may be left empty.
func (c *StreamConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw streamConfigYAML
	if err := unmarshal(&raw); err != nil {
		return err
	}

	dst, err := net.ParseMAC(raw.MACDst)
	if err != nil {
		return fmt.Errorf("mac_dst: %w", err)
	}
	var src net.HardwareAddr
	if raw.MACSrc != "" {
		src, err = net.ParseMAC(raw.MACSrc)
		if err != nil {
			return fmt.Errorf("mac_src: %w", err)
		}
	}

	*c = StreamConfig{
		StreamID:    raw.StreamID,
		SvID:        raw.SvID,
		AppID:       raw.AppID,
		MACDst:      dst,
		MACSrc:      src,
		VLANID:      raw.VLANID,
		VLANPrio:    raw.VLANPrio,
		VLANDEI:     raw.VLANDEI,
		DatasetRef:  raw.DatasetRef,
		ConfRev:     raw.ConfRev,
		SmpRate:     raw.SmpRate,
		SmpMod:      raw.SmpMod,
		NASDU:       raw.NASDU,
		NChannels:   raw.NChannels,
		NominalFreq: raw.NominalFreq,
		DataSource:  raw.DataSource,
	}
	return nil
}

// MarshalYAML renders MAC addresses back in colon-separated notation.
func (c StreamConfig) MarshalYAML() (interface{}, error) {
	return streamConfigYAML{
		StreamID:    c.StreamID,
		SvID:        c.SvID,
		AppID:       c.AppID,
		MACDst:      c.MACDst.String(),
		MACSrc:      c.MACSrc.String(),
		VLANID:      c.VLANID,
		VLANPrio:    c.VLANPrio,
		VLANDEI:     c.VLANDEI,
		DatasetRef:  c.DatasetRef,
		ConfRev:     c.ConfRev,
		SmpRate:     c.SmpRate,
		SmpMod:      c.SmpMod,
		NASDU:       c.NASDU,
		NChannels:   c.NChannels,
		NominalFreq: c.NominalFreq,
		DataSource:  c.DataSource,
	}, nil
}

// TCI packs VLAN priority/DEI/VID into the 16-bit 802.1Q tag control field.
func (c StreamConfig) TCI() uint16 {
	var dei uint16
	if c.VLANDEI {
		dei = 1
	}
	return uint16(c.VLANPrio)<<13 | dei<<12 | c.VLANID
}
