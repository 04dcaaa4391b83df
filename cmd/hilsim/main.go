// Command hilsim streams simulated sensor data to a flight computer and
// applies the actuator commands it sends back.
package main

func main() {
	Execute()
}
