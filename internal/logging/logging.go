/*
Copyright 2022 ICS-FORTH.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package logging builds the scheduler's logr.Logger façade over zap.
// logrus serves the rare CLI-only diagnostic emitted before the structured
// logger exists.
package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the scheduler-wide logr.Logger. debug switches the zap level
// and encoder to the development preset.
func New(debug bool) (logr.Logger, func() error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zl, err := cfg.Build()
	if err != nil {
		zl = zap.NewNop()
	}
	return zapr.NewLogger(zl), zl.Sync
}

// Diag is the logrus instance used for the rare CLI-only notice that
// doesn't belong in the structured scheduler log (banner, pre-flight
// warnings before the logr logger is constructed).
var Diag = logrus.New()

func init() {
	Diag.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
