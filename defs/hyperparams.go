package defs

import (
	"log"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var Target = "local"

// Local params
var local = `
proc:
  max_proc: 512
  procinfo_max_args_size: 128

fid:
  max_fileid: 16

pipe:
  buffer_size: 8192

socket:
  max_port: 1023
  connect_timeout: 500ms
`

// Tiny params, for exercising ring wrap-around and table exhaustion.
var tiny = `
proc:
  max_proc: 8
  procinfo_max_args_size: 16

fid:
  max_fileid: 8

pipe:
  buffer_size: 9

socket:
  max_port: 15
  connect_timeout: 100ms
`

type Config struct {
	Proc struct {
		// Capacity of the process table.
		MAX_PROC int `yaml:"max_proc"`
		// Bytes of main-task arguments reported per procinfo record.
		PROCINFO_MAX_ARGS_SIZE int `yaml:"procinfo_max_args_size"`
	} `yaml:"proc"`
	Fid struct {
		// Capacity of a process's descriptor table.
		MAX_FILEID int `yaml:"max_fileid"`
	} `yaml:"fid"`
	Pipe struct {
		// Ring size in bytes; usable capacity is one byte less.
		BUFFER_SIZE int `yaml:"buffer_size"`
	} `yaml:"pipe"`
	Socket struct {
		// Ports range over [1, MAX_PORT]; 0 is NOPORT.
		MAX_PORT int `yaml:"max_port"`
		// Default Connect timeout when the caller passes 0.
		CONNECT_TIMEOUT time.Duration `yaml:"connect_timeout"`
	} `yaml:"socket"`
}

var Conf *Config

func init() {
	SetTarget(Target)
}

// SetTarget reloads Conf for the named parameter set. Tests use it to boot
// a kernel with the tiny tables.
func SetTarget(t string) {
	Target = t
	switch t {
	case "local":
		Conf = ReadConfig(local)
	case "tiny":
		Conf = ReadConfig(tiny)
	default:
		log.Fatalf("Built for unknown target %s", t)
	}
}

func ReadConfig(params string) *Config {
	config := &Config{}
	d := yaml.NewDecoder(strings.NewReader(params))
	if err := d.Decode(config); err != nil {
		log.Fatalf("Yaml decode %v err %v\n", params, err)
	}
	return config
}
