package config

import (
	"net/netip"
	"time"

	"github.com/pion/webrtc/v4"
)

type AppConfig struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Security SecurityConfig `json:"security" yaml:"security"`
	WebRTC   WebRTCConfig   `json:"webrtc" yaml:"webrtc"`
	Capture  CaptureConfig  `json:"capture" yaml:"capture"`
	Turn     TurnConfig     `json:"turn" yaml:"turn"`
}

type ServerConfig struct {
	Port         int    `json:"port" yaml:"port"`
	PublicIP     string `json:"publicIp" yaml:"publicIp"`
	Advertise    bool   `json:"advertise" yaml:"advertise"`
	InstanceName string `json:"instanceName" yaml:"instanceName"`
}

type SecurityConfig struct {
	AdminCredential   *string        `json:"adminCredential" yaml:"adminCredential"`
	JWTSecret         *string        `json:"jwtSecret" yaml:"jwtSecret"`
	TLSCrtFile        *string        `json:"tlsCrtFile" yaml:"tlsCrtFile"`
	TLSKeyFile        *string        `json:"tlsKeyFile" yaml:"tlsKeyFile"`
	AdminsRawNetworks []netip.Prefix `json:"adminsNetworks" yaml:"adminsNetworks"`
}

// WebRTCConfig holds the engine settings and the ICE servers advertised to clients.
// StunURL and TurnURL are host[:port] strings without scheme; TurnURL may carry
// user:pass@ credentials.
type WebRTCConfig struct {
	PortMin            uint16        `json:"portMin" yaml:"portMin"`
	PortMax            uint16        `json:"portMax" yaml:"portMax"`
	StunURL            string        `json:"stunUrl" yaml:"stunUrl"`
	TurnURL            string        `json:"turnUrl" yaml:"turnUrl"`
	Codecs             []Codec       `json:"codecs" yaml:"codecs"`
	NegotiationTimeout time.Duration `json:"negotiationTimeout" yaml:"negotiationTimeout"`
}

// CaptureConfig describes the frame sources. Sources maps a device name to a
// subscriber address such as tcp://127.0.0.1:5555 or redis://localhost:6379/0.
type CaptureConfig struct {
	Sources        map[string]string `json:"sources" yaml:"sources"`
	ReceiveTimeout time.Duration     `json:"receiveTimeout" yaml:"receiveTimeout"`
	Bitrate        int               `json:"bitrate" yaml:"bitrate"`
	KeyFrameEvery  int               `json:"keyFrameInterval" yaml:"keyFrameInterval"`
}

type TurnConfig struct {
	Enabled      bool              `json:"enabled" yaml:"enabled"`
	Listen       string            `json:"listen" yaml:"listen"`
	Realm        string            `json:"realm" yaml:"realm"`
	PublicIP     string            `json:"publicIp" yaml:"publicIp"`
	Users        map[string]string `json:"users" yaml:"users"`
	RelayPortMin uint16            `json:"relayPortMin" yaml:"relayPortMin"`
	RelayPortMax uint16            `json:"relayPortMax" yaml:"relayPortMax"`
}

type Codec struct {
	Params webrtc.RTPCodecParameters `json:"params"`
	Type   webrtc.RTPCodecType       `json:"type"`
}

func DefaultAppConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Port:         8000,
			InstanceName: "webrtc-streamer",
		},
		Security: SecurityConfig{
			AdminsRawNetworks: []netip.Prefix{
				netip.MustParsePrefix("0.0.0.0/0"),
				netip.MustParsePrefix("::/0"),
			},
		},
		WebRTC: WebRTCConfig{
			PortMin:            10000,
			PortMax:            20000,
			StunURL:            "stun.l.google.com:19302",
			Codecs:             DefaultCodecs(),
			NegotiationTimeout: 5 * time.Second,
		},
		Capture: CaptureConfig{
			Sources:        map[string]string{},
			ReceiveTimeout: 100 * time.Millisecond,
			Bitrate:        1_000_000,
			KeyFrameEvery:  60,
		},
		Turn: TurnConfig{
			Listen:       "0.0.0.0:3478",
			Realm:        "webrtc-streamer",
			RelayPortMin: 40000,
			RelayPortMax: 40199,
		},
	}
}

func DefaultCodecs() []Codec {
	return []Codec{
		{
			Params: webrtc.RTPCodecParameters{
				RTPCodecCapability: webrtc.RTPCodecCapability{
					MimeType:     webrtc.MimeTypeVP8,
					ClockRate:    90000,
					RTCPFeedback: videoFeedback(),
				},
				PayloadType: 96,
			},
			Type: webrtc.RTPCodecTypeVideo,
		},
	}
}

func videoFeedback() []webrtc.RTCPFeedback {
	return []webrtc.RTCPFeedback{
		{Type: "nack"},
		{Type: "nack", Parameter: "pli"},
		{Type: "ccm", Parameter: "fir"},
		{Type: "goog-remb"},
	}
}
