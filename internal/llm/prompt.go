package llm

// cardSchemaText は抽出結果のJSON構造の説明
const cardSchemaText = `{
    "card_name": "String",
    "hp": "Integer or null",
    "pokemon_type": ["List of strings"],
    "evolves_from": "String or null",
    "attacks": [
        {
            "name": "String",
            "cost": ["List of strings (energy types)"],
            "damage": "String (e.g., \"20+\", \"100\") or null",
            "description": "String"
        }
    ],
    "weakness": {
        "type": "String (energy type) or null",
        "value": "String (e.g., \"x2\") or null"
    },
    "resistance": {
        "type": "String (energy type) or null",
        "value": "String (e.g., \"-30\") or null"
    },
    "retreat_cost": ["List of strings (energy types)"],
    "card_number": "String (e.g., \"63/102\")",
    "rarity": "String (e.g., \"Common\", \"Holo Rare\")",
    "illustrator": "String",
    "set_name": "String",
    "additional_info": "String (for abilities, Pokédex entries, flavor text, etc.)"
}`

// extractionPrompt はモデルに渡す指示文
const extractionPrompt = `Analyze the provided image of a Pokémon card.
Extract the following information and return it as a valid JSON object.
Ensure the JSON strictly adheres to the structure and data types described below.
If a field is not present on the card or cannot be determined, use null or an empty list/string as appropriate according to the schema.

JSON Schema:
` + cardSchemaText + `

Important Notes:
- For 'pokemon_type', 'attacks[].cost', and 'retreat_cost', provide a list of strings representing energy types (e.g., ["Grass", "Colorless"]).
- For 'hp', if present, it should be an integer.
- For 'attacks', provide a list of attack objects. If there are no attacks, use an empty list [].
- 'additional_info' can capture any other relevant text like Pokémon Powers, Abilities, Pokédex entries, or flavor text not covered by other fields.
- The entire output MUST be a single JSON object. Do not include any text before or after the JSON object.
- Be careful with escape characters within strings in the JSON.
`
