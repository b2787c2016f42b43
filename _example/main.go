package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hupe1980/coocgo"
	"github.com/hupe1980/coocgo/testutil"
)

func main() {
	seed := int64(4711)
	vocabSize := 2000
	size := 50000
	window := 6
	k := 10

	ctx := context.Background()

	sess, err := coocgo.Clique(window).Build()
	if err != nil {
		log.Fatal(err)
	}
	defer sess.Close()

	rng := testutil.NewRNG(seed)
	vocab := testutil.Vocabulary(vocabSize)
	parses := rng.Corpus(vocab, size, 8, 16, 1.1)

	fmt.Println("--- Observe ---")
	fmt.Println("Vocabulary:", vocabSize)
	fmt.Println("Parses:", size)

	start := time.Now()

	rep, err := sess.ObserveBatch(ctx, parses)
	if err != nil {
		log.Fatal(err)
	}

	end := time.Since(start)

	fmt.Println("Rows:", rep.Rows)
	fmt.Printf("Seconds: %.2f\n\n", end.Seconds())

	fmt.Println("--- Statistics ---")

	start = time.Now()

	if err := sess.FetchAll(ctx); err != nil {
		log.Fatal(err)
	}
	mrep, err := sess.ComputeMarginals(ctx)
	if err != nil {
		log.Fatal(err)
	}
	if _, err := sess.ComputeMutualInformation(ctx); err != nil {
		log.Fatal(err)
	}

	end = time.Since(start)

	fmt.Println("Pairs:", mrep.Pairs)
	fmt.Printf("Grand total: %.0f\n", mrep.Total)
	fmt.Printf("Seconds: %.2f\n\n", end.Seconds())

	fmt.Println("--- Top by count ---")

	start = time.Now()

	result, err := sess.Rank().Top(k).Execute(ctx)
	if err != nil {
		log.Fatal(err)
	}

	end = time.Since(start)

	printResult(result)

	fmt.Printf("Seconds: %.8f\n\n", end.Seconds())

	fmt.Println("--- Top by mutual information ---")

	start = time.Now()

	result, err = sess.Rank().Top(k).By(coocgo.ScoreMean).Execute(ctx)
	if err != nil {
		log.Fatal(err)
	}

	end = time.Since(start)

	printResult(result)

	fmt.Printf("Seconds: %.8f\n\n", end.Seconds())
}

func printResult(result []coocgo.RankedPair) {
	for _, r := range result {
		fmt.Printf("Left: %s, Right: %s, Score: %.2f\n", r.Pair.Left.Name, r.Pair.Right.Name, r.Score)
	}
}
