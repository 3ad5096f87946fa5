// Command mqdeckctl is the operator CLI for a mqdeck-managed MQTT
// broker: list and edit bridges, loggers and device connections, trust
// OPC UA certificates, move entity archives around, and watch the
// whole deployment from a terminal dashboard.
package main

import "github.com/mqdeck/mqdeck/mqdeckctl/cmd"

func main() {
	cmd.Execute()
}
