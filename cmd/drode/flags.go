package main

import "time"

// APIFlags select the daemon a client command talks to.
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
	TokenFile  string
}

// ServeFlags Flag structs to decouple cobra from logic for testing.
type ServeFlags struct {
	Listen    string
	Daemonize bool
	PidFile   string
	LogFile   string
}

type RunFlags struct {
	SessionID string
	Command   string
	Cwd       string
	Env       []string
	Follow    bool
	APIFlags
}

type KillFlags struct {
	SessionID string
	APIFlags
}

type AskFlags struct {
	Message string
	Resume  string
	Project string
	Follow  bool
	APIFlags
}

type OAuthFlags struct {
	Provider string
	Wait     bool
	Timeout  time.Duration
	APIFlags
}

type PortsFlags struct {
	Port uint32
	APIFlags
}

type ActivityFlags struct {
	Project  string
	Category string
	Before   int64
	Limit    int
	APIFlags
}
