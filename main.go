package main

import "github.com/frahmantamala/sms-expense-pipeline/cmd"

func main() {
	cmd.Execute()
}
