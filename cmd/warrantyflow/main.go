// Command warrantyflow runs the warranty ticket service: webhook intake,
// scheduled status notifications and the supporting one-shot commands.
package main

func main() {
	Execute()
}
