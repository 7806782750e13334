package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"questionbank"
)

func main() {
	var (
		configPath     = flag.String("config", "config.yaml", "Path to YAML config")
		createBank     = flag.String("create-bank", "", "Create a question bank with this name")
		description    = flag.String("description", "", "Description for -create-bank")
		sourceType     = flag.String("source-type", "MANUAL", "Source type for -create-bank (MANUAL, MENU, SOP)")
		categories     = flag.String("categories", "", "Comma separated categories")
		bankID         = flag.String("bank", "", "Question bank ID")
		generate       = flag.Int("generate", 0, "Number of AI questions to generate into -bank")
		knowledge      = flag.String("knowledge", "", "Knowledge category for generated questions")
		difficulty     = flag.String("difficulty", "", "Difficulty level (easy, medium, hard)")
		types          = flag.String("types", "", "Comma separated question types for generation")
		sourceMaterial = flag.String("source", "", "File with source material to base questions on")
		review         = flag.Bool("review", false, "Review pending questions in -bank interactively")
		list           = flag.Bool("list", false, "List question banks")
		watch          = flag.Bool("watch", false, "Print bank change events from Redis until interrupted")
		verbose        = flag.Bool("verbose", false, "Enable verbose debugging output")
	)
	flag.Parse()

	cfg, err := questionbank.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	questionbank.SetVerbose(*verbose || cfg.Log.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := questionbank.OpenStore(ctx, cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	var notifier questionbank.Notifier
	redisNotifier := cfg.NewNotifier()
	if redisNotifier != nil {
		defer redisNotifier.Close()
		notifier = redisNotifier
	}

	switch {
	case *list:
		listBanks(ctx, store)

	case *createBank != "":
		submitter := questionbank.NewSubmitter(store, notifier)
		bank, err := submitter.CreateBank(ctx, questionbank.BankDraft{
			Name:        *createBank,
			Description: *description,
			SourceType:  questionbank.SourceType(strings.ToUpper(*sourceType)),
			Categories:  splitList(*categories),
		})
		if err != nil {
			log.Fatalf("Failed to create bank: %s", questionbank.UserMessage(err))
		}
		fmt.Printf("✅ Created bank %s (%s)\n", bank.ID, bank.Name)

	case *generate > 0:
		requireBank(*bankID)
		generator := cfg.NewGenerator(store)
		if generator == nil {
			log.Fatal("OpenAI API key is required. Set openai.api_key or OPENAI_API_KEY.")
		}
		params := questionbank.GenerationParams{
			BankID:            *bankID,
			Count:             *generate,
			Categories:        splitList(*categories),
			KnowledgeCategory: questionbank.KnowledgeCategory(*knowledge),
			Difficulty:        questionbank.Difficulty(*difficulty),
		}
		for _, t := range splitList(*types) {
			params.QuestionTypes = append(params.QuestionTypes, questionbank.QuestionType(t))
		}
		if len(params.Categories) == 0 {
			bank, err := store.GetQuestionBank(ctx, *bankID)
			if err != nil {
				log.Fatalf("Failed to load bank: %v", err)
			}
			params.Categories = bank.Categories
		}
		if *sourceMaterial != "" {
			data, err := os.ReadFile(*sourceMaterial)
			if err != nil {
				log.Fatalf("Failed to read source material: %v", err)
			}
			params.SourceMaterial = string(data)
		}

		genCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()

		fmt.Println("⏳ Generating questions... (this may take a moment)")
		controller := questionbank.NewReviewController(store, generator, notifier)
		questions, err := controller.Generate(genCtx, params)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Fatalf("Generation abandoned: %v", err)
			}
			log.Fatalf("Failed to generate questions: %s", questionbank.UserMessage(err))
		}
		fmt.Printf("📝 %d questions added for review\n", len(questions))
		output, _ := json.MarshalIndent(questions, "", "  ")
		questionbank.VerboseLog("%s", output)

	case *review:
		requireBank(*bankID)
		reviewPending(ctx, questionbank.NewReviewController(store, nil, notifier), *bankID)

	case *watch:
		if redisNotifier == nil {
			log.Fatal("Redis address is required. Set redis.addr or REDIS_ADDR.")
		}
		watchEvents(ctx, redisNotifier)

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func requireBank(id string) {
	if id == "" {
		log.Fatal("Bank ID is required. Use -bank flag.")
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func listBanks(ctx context.Context, store questionbank.Store) {
	banks, err := store.ListQuestionBanks(ctx)
	if err != nil {
		log.Fatalf("Failed to list banks: %v", err)
	}
	if len(banks) == 0 {
		fmt.Println("No question banks yet.")
		return
	}
	for _, b := range banks {
		fmt.Printf("%s  %-30s %-6s %3d questions  %s\n", b.ID, b.Name, b.SourceType, b.QuestionCount, strings.Join(b.Categories, ", "))
	}
}

func reviewPending(ctx context.Context, controller *questionbank.ReviewController, bankID string) {
	pending, err := controller.LoadPending(ctx, bankID)
	if err != nil {
		log.Fatalf("Failed to load pending questions: %s", questionbank.UserMessage(err))
	}
	if len(pending) == 0 {
		fmt.Println("Nothing to review.")
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	var approve, reject []string
	for i, q := range pending {
		fmt.Printf("Question %d/%d [%s]:\n", i+1, len(pending), q.QuestionType)
		fmt.Printf("%s\n\n", q.QuestionText)
		for j, o := range q.Options {
			marker := " "
			if o.IsCorrect {
				marker = "✓"
			}
			fmt.Printf("  %s %c) %s\n", marker, 'A'+j, o.Text)
		}
		if q.Explanation != "" {
			fmt.Printf("💡 %s\n", q.Explanation)
		}
		fmt.Println()

		answer := ""
		for answer != "a" && answer != "r" && answer != "s" {
			fmt.Print("(a)pprove, (r)eject, (s)kip: ")
			if !scanner.Scan() {
				answer = "s"
				break
			}
			answer = strings.ToLower(strings.TrimSpace(scanner.Text()))
		}
		switch answer {
		case "a":
			approve = append(approve, q.ID)
		case "r":
			reject = append(reject, q.ID)
		}
		fmt.Println(strings.Repeat("─", 50))
	}

	if len(approve) > 0 {
		res, err := controller.Approve(ctx, bankID, approve)
		if err != nil {
			log.Fatalf("Failed to approve: %s", questionbank.UserMessage(err))
		}
		printResult("Approved", res)
	}
	if len(reject) > 0 {
		res, err := controller.RejectOrDelete(ctx, bankID, reject)
		if err != nil {
			log.Fatalf("Failed to reject: %s", questionbank.UserMessage(err))
		}
		printResult("Rejected", res)
	}
}

// watchEvents prints bank events published by other editors
func watchEvents(ctx context.Context, n *questionbank.RedisNotifier) {
	if err := n.Ping(ctx); err != nil {
		log.Fatalf("Failed to reach Redis: %v", err)
	}
	fmt.Println("👀 Watching question bank events (Ctrl+C to stop)")
	err := n.Subscribe(ctx, func(e questionbank.BankEvent) {
		fmt.Printf("%s  %-18s %s  %d questions\n", time.Now().Format("15:04:05"), e.Kind, e.BankID, e.QuestionCount)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Subscription ended: %v", err)
	}
}

func printResult(verb string, res questionbank.BulkResult) {
	fmt.Printf("✅ %s %d questions\n", verb, len(res.SucceededIDs))
	for _, id := range res.FailedIDs {
		fmt.Printf("❌ %s: %s\n", id, res.Errors[id])
	}
	if res.Bank != nil {
		fmt.Printf("📊 Bank %s now has %d questions\n", res.Bank.Name, res.Bank.QuestionCount)
	}
}
