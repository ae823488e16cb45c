// Homewatch - Smart Home Monitoring Agent
// Poll. Analyze. Notify.
package main

func main() {
	Execute()
}
