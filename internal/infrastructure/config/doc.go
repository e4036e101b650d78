// Package config provides layered configuration for the Inky display agent.
//
// Configuration is loaded in three layers, later layers winning:
//
//  1. Built-in defaults (Default)
//  2. YAML configuration file
//  3. INKY_* environment variables
//
// # Example
//
//	device:
//	  id: "inky-kitchen"
//	  room: "kitchen"
//	mqtt:
//	  broker:
//	    host: "broker.local"
//	    port: 1883
//	display:
//	  saturation: 0.5
//
// Secrets (MQTT password, store keys, telemetry token) should be
// supplied via environment variables rather than the YAML file.
package config
