package main

import (
	"fmt"

	store "github.com/doriantaylor/store-digest"
)

func printObject(primary store.Digest, obj store.Object) {
	fmt.Printf("%s\n", primary)
	fmt.Printf("  size:     %d\n", obj.Size)
	fmt.Printf("  type:     %s\n", obj.Type)
	if obj.Charset != "" {
		fmt.Printf("  charset:  %s\n", obj.Charset)
	}
	if obj.Language != "" {
		fmt.Printf("  language: %s\n", obj.Language)
	}
	if obj.Encoding != "" {
		fmt.Printf("  encoding: %s\n", obj.Encoding)
	}
	fmt.Printf("  ctime:    %s\n", obj.CTime)
	fmt.Printf("  mtime:    %s\n", obj.MTime)
	if obj.DTime != nil {
		fmt.Printf("  dtime:    %s\n", *obj.DTime)
	}
}
