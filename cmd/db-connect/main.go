// db-connect - tag-driven RDS and Aurora connector.
// Discover. Select. Authenticate. Connect.
package main

func main() {
	Execute()
}
