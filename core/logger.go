/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

import "github.com/golang/glog"

// glogLogger is the stock Logger: fire-and-forget leveled logging via
// glog, matching the teacher's own glog usage elsewhere in the tree.
// Never returns an error and never blocks the caller (spec §6).
type glogLogger struct{}

func NewGlogLogger() Logger { return glogLogger{} }

func (glogLogger) Infof(format string, args ...interface{})  { glog.Infof(format, args...) }
func (glogLogger) Warnf(format string, args ...interface{})  { glog.Warningf(format, args...) }
func (glogLogger) Errorf(format string, args ...interface{}) { glog.Errorf(format, args...) }
