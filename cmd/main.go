// Command myidmji runs the gathering registration API and its maintenance
// tasks.
package main

func main() {
	Execute()
}
