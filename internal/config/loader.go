package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"

	"gopkg.in/yaml.v3"
)

// ConfigFiles are the per-section file bases looked up in the config directory,
// each as <base>.yaml or <base>.json.
var ConfigFiles = []string{"server", "security", "webrtc", "capture", "turn"}

func LoadAppConfig(dir string) (*AppConfig, error) {
	cfg := DefaultAppConfig()

	var rawServer RawServerConfig
	if err := loadFileInto(dir, "server", &rawServer); err != nil {
		return nil, err
	}
	mergeInto(&cfg.Server, rawServer.ToDomain())

	var rawSec RawSecurityConfig
	if err := loadFileInto(dir, "security", &rawSec); err != nil {
		return nil, err
	}
	parsedSec, err := rawSec.ToDomain()
	if err != nil {
		return nil, err
	}
	mergeInto(&cfg.Security, parsedSec)

	var rawWebRTC RawWebRTCConfig
	if err := loadFileInto(dir, "webrtc", &rawWebRTC); err != nil {
		return nil, err
	}
	parsedWebRTC, err := rawWebRTC.ToDomain()
	if err != nil {
		return nil, err
	}
	mergeInto(&cfg.WebRTC, parsedWebRTC)

	var rawCapture RawCaptureConfig
	if err := loadFileInto(dir, "capture", &rawCapture); err != nil {
		return nil, err
	}
	mergeInto(&cfg.Capture, rawCapture.ToDomain())

	var rawTurn RawTurnConfig
	if err := loadFileInto(dir, "turn", &rawTurn); err != nil {
		return nil, err
	}
	mergeInto(&cfg.Turn, rawTurn.ToDomain())

	return &cfg, nil
}

func loadFileInto(dir, filenameBase string, target any) error {
	basePath := filepath.Join(dir, filenameBase)

	for _, ext := range []string{".yaml", ".yml", ".json"} {
		f, err := os.Open(basePath + ext)
		if err != nil {
			continue
		}
		defer f.Close()

		if ext == ".json" {
			err = json.NewDecoder(f).Decode(target)
		} else {
			err = yaml.NewDecoder(f).Decode(target)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				slog.Warn("config file is empty, using defaults", "file", basePath+ext)
				return nil
			}
			return fmt.Errorf("can not decode %s: %w", basePath+ext, err)
		}
		return nil
	}

	return nil
}

func mergeInto(dst, src any) {
	mergeValues(reflect.ValueOf(dst).Elem(), reflect.ValueOf(src))
}

func mergeValues(dstVal, srcVal reflect.Value) {
	for i := 0; i < srcVal.NumField(); i++ {
		srcField := srcVal.Field(i)
		dstField := dstVal.Field(i)

		switch srcField.Kind() {
		case reflect.Struct:
			mergeValues(dstField, srcField)
		case reflect.Slice, reflect.Map:
			if !srcField.IsNil() && srcField.Len() > 0 {
				dstField.Set(srcField)
			}
		case reflect.Pointer:
			if !srcField.IsNil() {
				dstField.Set(srcField)
			}
		default:
			if !srcField.IsZero() {
				dstField.Set(srcField)
			}
		}
	}
}
