package main

import "time"

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	// Remote daemon connection; commands that can run locally only use the
	// daemon when APIUrl is set.
	APIUrl     string
	APITimeout time.Duration
}

type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}

type NotifyFlags struct {
	EntityID string
	Tags     []string
}

type StatusFlags struct {
	EntityID string
}

type TagFlags struct {
	EntityID string
	Prefix   string
}

type RunFlags struct {
	EntityID string
	Tags     []string
}
