package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/Raaghu/collaboration/pkg/access"
)

func main() {
	if len(os.Args) < 2 {
		fatalf("usage: policycheck <validate|roles> [args]")
	}

	switch os.Args[1] {
	case "validate":
		validate(os.Args[2:])
	case "roles":
		roles(os.Args[2:])
	default:
		fatalf("unknown subcommand: %s", os.Args[1])
	}
}

// validate parses a policy file and compiles every capability expression.
func validate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var path string
	fs.StringVar(&path, "policy", "", "path to policy yaml")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if path == "" {
		fatalf("missing --policy")
	}

	policy, err := access.LoadPolicy(path)
	if err != nil {
		fatal(err)
	}
	if _, err := access.NewCELCapabilities(policy.Capabilities); err != nil {
		fatal(err)
	}

	entities := make([]string, 0, len(policy.Entities))
	for name := range policy.Entities {
		entities = append(entities, name)
	}
	sort.Strings(entities)
	for _, entity := range entities {
		ep := policy.Entities[entity]
		ops := make([]string, 0, len(ep.Operations))
		for op := range ep.Operations {
			ops = append(ops, op)
		}
		sort.Strings(ops)
		for _, op := range ops {
			fmt.Printf("%s.%s: %s\n", entity, op, ep.Operations[op].String())
		}
		attrs := make([]string, 0, len(ep.Attributes))
		for attr := range ep.Attributes {
			attrs = append(attrs, attr)
		}
		sort.Strings(attrs)
		for _, attr := range attrs {
			reqs := ep.Attributes[attr]
			if reqs.Get != nil {
				fmt.Printf("%s.%s get: %s\n", entity, attr, reqs.Get.String())
			}
			if reqs.Set != nil {
				fmt.Printf("%s.%s set: %s\n", entity, attr, reqs.Set.String())
			}
		}
	}
	fmt.Printf("ok: %d capabilities, %d entities\n", len(policy.Capabilities), len(policy.Entities))
}

// roles prints the resolved role set for an account.
func roles(args []string) {
	fs := flag.NewFlagSet("roles", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var model, policy string
	var account int64
	fs.StringVar(&model, "model", "", "path to casbin model.conf")
	fs.StringVar(&policy, "grants", "", "path to casbin policy.csv")
	fs.Int64Var(&account, "account", 0, "account id")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if model == "" || policy == "" {
		fatalf("missing --model or --grants")
	}
	if account == 0 {
		fatalf("missing --account")
	}

	provider, err := access.NewRoleProvider(model, policy)
	if err != nil {
		fatal(err)
	}
	names, err := provider.RolesForAccount(account)
	if err != nil {
		fatal(err)
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func fatal(err error) {
	fatalf("%v", err)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
