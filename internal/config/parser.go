package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

type RawServerConfig struct {
	Port         *int    `yaml:"port" json:"port"`
	PublicIP     *string `yaml:"publicIp" json:"publicIp"`
	Advertise    *bool   `yaml:"advertise" json:"advertise"`
	InstanceName *string `yaml:"instanceName" json:"instanceName"`
}

func (r RawServerConfig) ToDomain() ServerConfig {
	var cfg ServerConfig
	if r.Port != nil {
		cfg.Port = *r.Port
	}
	if r.PublicIP != nil {
		cfg.PublicIP = *r.PublicIP
	}
	if r.Advertise != nil {
		cfg.Advertise = *r.Advertise
	}
	if r.InstanceName != nil {
		cfg.InstanceName = *r.InstanceName
	}
	return cfg
}

type RawSecurityConfig struct {
	AdminCredential   *string   `yaml:"adminCredential" json:"adminCredential"`
	JWTSecret         *string   `yaml:"jwtSecret" json:"jwtSecret"`
	TLSCrtFile        *string   `yaml:"tlsCrtFile" json:"tlsCrtFile"`
	TLSKeyFile        *string   `yaml:"tlsKeyFile" json:"tlsKeyFile"`
	AdminsRawNetworks *[]string `yaml:"adminsNetworks" json:"adminsNetworks"`
}

func (r RawSecurityConfig) ToDomain() (SecurityConfig, error) {
	var cfg SecurityConfig
	cfg.AdminCredential = r.AdminCredential
	cfg.JWTSecret = r.JWTSecret
	cfg.TLSCrtFile = r.TLSCrtFile
	cfg.TLSKeyFile = r.TLSKeyFile

	if r.AdminsRawNetworks != nil {
		nets := make([]netip.Prefix, 0, len(*r.AdminsRawNetworks))
		for _, s := range *r.AdminsRawNetworks {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return SecurityConfig{}, fmt.Errorf("invalid admin network %q: %w", s, err)
			}
			nets = append(nets, p)
		}
		cfg.AdminsRawNetworks = nets
	}

	return cfg, nil
}

type RawWebRTCConfig struct {
	PortMin              *uint16     `yaml:"portMin" json:"portMin"`
	PortMax              *uint16     `yaml:"portMax" json:"portMax"`
	StunURL              *string     `yaml:"stunUrl" json:"stunUrl"`
	TurnURL              *string     `yaml:"turnUrl" json:"turnUrl"`
	Codecs               *[]RawCodec `yaml:"codecs" json:"codecs"`
	NegotiationTimeoutMs *int        `yaml:"negotiationTimeoutMs" json:"negotiationTimeoutMs"`
}

type RawCodec struct {
	Params struct {
		MimeType    string `json:"mimeType" yaml:"mimeType"`
		ClockRate   uint32 `json:"clockRate" yaml:"clockRate"`
		PayloadType uint8  `json:"payloadType" yaml:"payloadType"`
		Channels    uint16 `json:"channels" yaml:"channels"`
	} `json:"params" yaml:"params"`
	Type string `json:"type" yaml:"type"`
}

func (r RawWebRTCConfig) ToDomain() (WebRTCConfig, error) {
	var cfg WebRTCConfig
	if r.PortMin != nil {
		cfg.PortMin = *r.PortMin
	}
	if r.PortMax != nil {
		cfg.PortMax = *r.PortMax
	}
	if cfg.PortMin > 0 && cfg.PortMax > 0 && cfg.PortMin > cfg.PortMax {
		return WebRTCConfig{}, fmt.Errorf("invalid webrtc port range %d-%d", cfg.PortMin, cfg.PortMax)
	}
	if r.StunURL != nil {
		cfg.StunURL = *r.StunURL
	}
	if r.TurnURL != nil {
		cfg.TurnURL = *r.TurnURL
	}
	if r.Codecs != nil {
		cfg.Codecs = parseCodecs(*r.Codecs)
	}
	if r.NegotiationTimeoutMs != nil && *r.NegotiationTimeoutMs > 0 {
		cfg.NegotiationTimeout = time.Duration(*r.NegotiationTimeoutMs) * time.Millisecond
	}
	return cfg, nil
}

type RawCaptureConfig struct {
	Sources          *map[string]string `yaml:"sources" json:"sources"`
	ReceiveTimeoutMs *int               `yaml:"receiveTimeoutMs" json:"receiveTimeoutMs"`
	Bitrate          *int               `yaml:"bitrate" json:"bitrate"`
	KeyFrameInterval *int               `yaml:"keyFrameInterval" json:"keyFrameInterval"`
}

func (r RawCaptureConfig) ToDomain() CaptureConfig {
	var cfg CaptureConfig
	if r.Sources != nil {
		cfg.Sources = *r.Sources
	}
	if r.ReceiveTimeoutMs != nil && *r.ReceiveTimeoutMs > 0 {
		cfg.ReceiveTimeout = time.Duration(*r.ReceiveTimeoutMs) * time.Millisecond
	}
	if r.Bitrate != nil {
		cfg.Bitrate = *r.Bitrate
	}
	if r.KeyFrameInterval != nil {
		cfg.KeyFrameEvery = *r.KeyFrameInterval
	}
	return cfg
}

type RawTurnConfig struct {
	Enabled      *bool              `yaml:"enabled" json:"enabled"`
	Listen       *string            `yaml:"listen" json:"listen"`
	Realm        *string            `yaml:"realm" json:"realm"`
	PublicIP     *string            `yaml:"publicIp" json:"publicIp"`
	Users        *map[string]string `yaml:"users" json:"users"`
	RelayPortMin *uint16            `yaml:"relayPortMin" json:"relayPortMin"`
	RelayPortMax *uint16            `yaml:"relayPortMax" json:"relayPortMax"`
}

func (r RawTurnConfig) ToDomain() TurnConfig {
	var cfg TurnConfig
	if r.Enabled != nil {
		cfg.Enabled = *r.Enabled
	}
	if r.Listen != nil {
		cfg.Listen = *r.Listen
	}
	if r.Realm != nil {
		cfg.Realm = *r.Realm
	}
	if r.PublicIP != nil {
		cfg.PublicIP = *r.PublicIP
	}
	if r.Users != nil {
		cfg.Users = *r.Users
	}
	if r.RelayPortMin != nil {
		cfg.RelayPortMin = *r.RelayPortMin
	}
	if r.RelayPortMax != nil {
		cfg.RelayPortMax = *r.RelayPortMax
	}
	return cfg
}

func parseCodecs(rawCodecs []RawCodec) []Codec {
	result := make([]Codec, 0, len(rawCodecs))

	for _, rawCodec := range rawCodecs {
		capability := webrtc.RTPCodecCapability{
			MimeType:  rawCodec.Params.MimeType,
			ClockRate: rawCodec.Params.ClockRate,
			Channels:  rawCodec.Params.Channels,
		}

		if strings.HasPrefix(strings.ToLower(rawCodec.Params.MimeType), "video/") {
			capability.RTCPFeedback = videoFeedback()
		}

		result = append(result, Codec{
			Params: webrtc.RTPCodecParameters{
				RTPCodecCapability: capability,
				PayloadType:        webrtc.PayloadType(rawCodec.Params.PayloadType),
			},
			Type: webrtc.NewRTPCodecType(rawCodec.Type),
		})
	}

	return result
}
