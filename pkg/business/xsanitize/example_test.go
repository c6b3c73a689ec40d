package xsanitize_test

import (
	"fmt"

	"github.com/omeyang/fetchguard/pkg/business/xsanitize"
)

func ExampleSanitizeEmail() {
	fmt.Println(xsanitize.SanitizeEmail("  User@Example.COM  "))
	fmt.Println(xsanitize.SanitizeEmail("user<script>@test.com"))
	// Output:
	// user@example.com
	// userscript@test.com
}

func ExamplePrepare() {
	c, err := xsanitize.Prepare(" Jane@Bank.com ", "hunter2")
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(c)

	_, err = xsanitize.Prepare("jane@bank.com", "   ")
	fmt.Println(err)
	// Output:
	// Credentials{Email: j***@bank.com, Password: [REDACTED]}
	// xsanitize: password is empty
}
