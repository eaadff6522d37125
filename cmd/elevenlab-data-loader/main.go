package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/sirupsen/logrus"

	"elevenlab/config"
	"elevenlab/data"
	"elevenlab/ent"
	"elevenlab/store"
	"elevenlab/store/storedriver"
)

type foodRow struct {
	Name        string  `csv:"name"`
	Category    string  `csv:"category"`
	Price       float64 `csv:"price"`
	Quantity    float64 `csv:"quantity"`
	Origin      string  `csv:"origin"`
	Image       string  `csv:"image"`
	Description string  `csv:"description"`
}

func readFoods(r io.Reader, addedBy, addedByName string) ([]ent.Food, error) {
	var rows []foodRow

	err := gocsv.Unmarshal(r, &rows)
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	fs := make([]ent.Food, 0, len(rows))
	for i, row := range rows {
		name := strings.TrimSpace(row.Name)
		if name == "" {
			return nil, fmt.Errorf("row %d: empty name", i+2)
		}

		fs = append(fs, ent.Food{
			Name:        name,
			Category:    strings.TrimSpace(row.Category),
			Price:       row.Price,
			Quantity:    row.Quantity,
			Origin:      strings.TrimSpace(row.Origin),
			Image:       strings.TrimSpace(row.Image),
			Description: strings.TrimSpace(row.Description),
			AddedBy:     addedBy,
			AddedByName: addedByName,
		})
	}

	return fs, nil
}

func load(ctx context.Context, st store.Store, fs []ent.Food) error {
	for _, f := range fs {
		res, err := st.InsertFood(ctx, f)
		if err != nil {
			return fmt.Errorf("insert %q: %w", f.Name, err)
		}
		logrus.WithField("id", res.InsertedID).WithField("name", f.Name).Debug("food loaded")
	}
	return nil
}

func main() {
	file := flag.String("file", "", "CSV file to load instead of the embedded catalog")
	addedBy := flag.String("added-by", "admin@elevenlab.dev", "owner email for loaded foods")
	addedByName := flag.String("added-by-name", "Eleven Lab", "owner name for loaded foods")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	logrus.SetLevel(cfg.LogLevel)

	if cfg.StoreDriver == config.StoreMemory {
		logrus.Fatal("STORE_DRIVER must be postgres or mongo")
	}

	var r io.ReadCloser
	if *file != "" {
		r, err = os.Open(*file)
	} else {
		r, err = data.FS.Open("foods.csv")
	}
	if err != nil {
		logrus.WithError(err).Fatal("failed to open catalog")
	}
	defer r.Close()

	fs, err := readFoods(r, *addedBy, *addedByName)
	if err != nil {
		logrus.WithError(err).Fatal("failed to read catalog")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	st, err := storedriver.Open(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("failed to open store")
	}
	defer st.Close(ctx)

	err = load(ctx, st, fs)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load catalog")
	}

	logrus.WithField("count", len(fs)).Info("catalog loaded")
}
