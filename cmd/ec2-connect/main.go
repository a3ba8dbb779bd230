// ec2-connect - tag-driven SSM session launcher for EC2 instances.
package main

func main() {
	Execute()
}
