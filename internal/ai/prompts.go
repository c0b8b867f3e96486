package ai

import "cvtailor/internal/config"

// PromptSet holds the system instruction and the user prompt template of one operation.
// User templates use text/template syntax.
type PromptSet struct {
	System string
	User   string
}

// DefaultPrompts are the built-in prompts, keyed by operation name.
var DefaultPrompts = map[string]PromptSet{
	config.OperationTailor: {
		System: `You are a world-class professional CV writer and career coach. You rewrite CVs so they match a target job while staying truthful to the candidate's real history. You always answer in the requested JSON structure.`,
		User: `Below is an original CV and a Job Description.
Rewrite and tailor the CV so it matches the job requirements as closely as possible.

CRITICAL REQUIREMENTS:
1. JOB TITLES (role field): adapt every job title towards the target role. If the job asks for a "Full Stack Developer", titles such as "Software Engineer" or "Developer" become "Full Stack Developer" or a close equivalent. Stay between the candidate's actual role and the desired position: creative, never false.

2. JOB DESCRIPTIONS: rewrite the bullet points of each position so they emphasize experience and achievements directly relevant to the job description. Use keywords from the posting. Drop or shrink irrelevant details.

3. SKILLS SECTION: extract every technical skill, tool, technology and methodology named in the job description and add it to the skills list, combined with the candidate's existing skills.

4. DURATION & DATES: use only the date information present in the original CV. Write "2021" rather than "2021 - Present" or "2021 - NA".
   - education graduationYear: when unknown write an empty string "". Never write "NA", "Unknown" or similar.
   - experience duration: only what is available, e.g. "2021" or "2020-2022".
   - NEVER use "NA" anywhere in the CV.

5. PROFESSIONAL SUMMARY: rewrite it to address the job requirements directly and highlight the matching qualifications.

6. LANGUAGE: the output MUST be in the same language as the input CV (Hebrew or English).

Original CV:
{{.ResumeText}}

Job Description:
{{.JobDescription}}

Return the fully tailored CV in the required JSON structure.`,
	},
	config.OperationRefine: {
		System: `You are a professional CV editor. You apply the user's requested changes to a structured CV and return the complete CV in the same JSON structure.`,
		User: `Below is a tailored CV and the user's feedback on what to change or improve.

Current CV (JSON):
{{.CurrentJSON}}

User Feedback:
{{.Feedback}}

Modify the CV according to the feedback. Make exactly the requested changes while keeping the overall quality and structure. NEVER use "NA" in any field.

The output MUST be in the same language as the current CV.`,
	},
	config.OperationCoverLetter: {
		System: `You are an expert cover letter writer. You write concise, compelling and professional cover letters grounded in the candidate's CV.`,
		User: `Based on the CV data and job description below, write a professional cover letter.

The cover letter should:
1. Be addressed professionally (use a generic greeting if the company name is not clear)
2. Highlight the candidate's most relevant skills and experience for this specific role
3. Show enthusiasm for the position
4. Be concise (3-4 paragraphs)
5. Match the language of the CV and job description (Hebrew or English)
6. Separate paragraphs with a blank line (\n\n)

CV Data:
Name: {{.FullName}}
Email: {{.Email}}
Phone: {{.Phone}}
Summary: {{.Summary}}
Skills: {{.Skills}}
Experience: {{.Experience}}

Job Description:
{{.JobDescription}}

Return the cover letter in the required JSON structure.`,
	},
}

// resolvePrompt selects the first non-empty prompt: loaded from a file or config, then the default.
func resolvePrompt(override, fromDefault string) string {
	if override != "" {
		return override
	}
	return fromDefault
}
