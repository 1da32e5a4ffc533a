// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package parsers

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/feedproxy/feedproxy/pkg/feed"
	"github.com/feedproxy/feedproxy/pkg/handlers"
	"github.com/feedproxy/feedproxy/pkg/util/log"
)

const fotocasaBaseURL = "https://www.fotocasa.es"

// fotocasa embeds the search state as a JSON.parse call in an inline script.
var fotocasaPropsRe = regexp.MustCompile(`(?s)window\.__INITIAL_PROPS__\s*=\s*JSON\.parse\("(.+?)"\)`)

var fotocasaBuildingTypes = map[string]string{
	"Flat":      "Piso",
	"House":     "Casa",
	"Penthouse": "Ático",
	"Duplex":    "Dúplex",
	"Studio":    "Estudio",
	"Loft":      "Loft",
	"Chalet":    "Chalet",
}

type fotocasaProps struct {
	InitialSearch struct {
		Result struct {
			RealEstates []fotocasaEstate `json:"realEstates"`
		} `json:"result"`
	} `json:"initialSearch"`
}

type fotocasaEstate struct {
	ID           json.Number `json:"id"`
	BuildingType string      `json:"buildingType"`
	Location     string      `json:"location"`
	Price        interface{} `json:"price"`
	Detail       struct {
		EsES string `json:"es-ES"`
	} `json:"detail"`
	Features []struct {
		Key   string      `json:"key"`
		Value interface{} `json:"value"`
	} `json:"features"`
}

// NewFotocasaDef returns the fotocasa parser definition, reading the listing
// state embedded in a fotocasa.es search results page.
func NewFotocasaDef() handlers.ParserDef {
	return handlers.ParserDef{
		Name: "fotocasa",
		New: func(options map[string]interface{}) (handlers.Parser, error) {
			var opts struct{}
			if err := handlers.DecodeOptions(options, &opts); err != nil {
				return nil, err
			}
			return parseFotocasa, nil
		},
	}
}

func parseFotocasa(ctx context.Context, raw string) ([]feed.Post, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	match := fotocasaPropsRe.FindStringSubmatch(raw)
	if match == nil {
		log.Warnf("Could not find __INITIAL_PROPS__ in fotocasa page")
		return nil, nil
	}

	// The capture is the body of a JS string literal; unquoting it yields
	// the JSON document passed to JSON.parse.
	unescaped, err := strconv.Unquote(`"` + match[1] + `"`)
	if err != nil {
		return nil, fmt.Errorf("unescape fotocasa state: %w", err)
	}

	decoder := json.NewDecoder(strings.NewReader(unescaped))
	decoder.UseNumber()
	var props fotocasaProps
	if err := decoder.Decode(&props); err != nil {
		return nil, fmt.Errorf("parse fotocasa state: %w", err)
	}

	var posts []feed.Post
	for _, estate := range props.InitialSearch.Result.RealEstates {
		if estate.ID.String() == "" || estate.Detail.EsES == "" {
			continue
		}
		money := fmt.Sprint(estate.Price)
		if estate.Price == nil {
			money = ""
		}
		features := estate.featureMap()
		posts = append(posts, feed.Post{
			PostID: estate.ID.String() + "_" + money,
			Fields: map[string]interface{}{
				"title":   estate.title(features),
				"url":     fotocasaBaseURL + estate.Detail.EsES,
				"money":   money,
				"details": strings.Join(estate.details(features), " "),
			},
		})
	}
	return posts, nil
}

func (e *fotocasaEstate) featureMap() map[string]interface{} {
	features := make(map[string]interface{}, len(e.Features))
	for _, feature := range e.Features {
		if feature.Key != "" {
			features[feature.Key] = feature.Value
		}
	}
	return features
}

func (e *fotocasaEstate) title(features map[string]interface{}) string {
	buildingType := e.BuildingType
	if translated, ok := fotocasaBuildingTypes[buildingType]; ok {
		buildingType = translated
	}

	parts := []string{buildingType}
	if surface := featureString(features, "surface"); surface != "" {
		parts = append(parts, "de "+surface+" m²")
	}
	if e.Location != "" {
		parts = append(parts, "en "+e.Location)
	}
	return strings.Join(parts, " ")
}

func (e *fotocasaEstate) details(features map[string]interface{}) []string {
	var details []string
	if rooms := featureString(features, "rooms"); rooms != "" {
		details = append(details, rooms+" habs")
	}
	if bathrooms := featureString(features, "bathrooms"); bathrooms != "" {
		label := " baños"
		if bathrooms == "1" {
			label = " baño"
		}
		details = append(details, bathrooms+label)
	}
	if surface := featureString(features, "surface"); surface != "" {
		details = append(details, surface+" m²")
	}
	if featureBool(features, "elevator") {
		details = append(details, "Ascensor")
	}
	if featureBool(features, "heating") {
		details = append(details, "Calefacción")
	}
	if featureBool(features, "furnished") {
		details = append(details, "Amueblado")
	}
	return details
}

func featureString(features map[string]interface{}, key string) string {
	value, ok := features[key]
	if !ok || value == nil {
		return ""
	}
	return fmt.Sprint(value)
}

func featureBool(features map[string]interface{}, key string) bool {
	switch value := features[key].(type) {
	case bool:
		return value
	case json.Number:
		return value.String() != "0"
	case string:
		return value != "" && value != "false" && value != "0"
	default:
		return false
	}
}
